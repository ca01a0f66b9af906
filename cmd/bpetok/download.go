package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-bpetok/internal/hub"
)

func newVocabDownloadCmd() *cobra.Command {
	var (
		repo     string
		revision string
		outDir   string
		token    string
		baseURL  string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download vocab.json and merges.txt from a Hugging Face repo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = filepath.Dir(cfg.Paths.Vocab)
			}
			if token == "" {
				token = os.Getenv("HF_TOKEN")
			}

			return hub.Download(cmd.Context(), hub.DownloadOptions{
				Repo:     repo,
				Revision: revision,
				OutDir:   outDir,
				Token:    token,
				BaseURL:  baseURL,
				Stdout:   cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "openai-community/gpt2", "Hugging Face repo id")
	cmd.Flags().StringVar(&revision, "revision", "main", "Repo revision (branch, tag or commit)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory (defaults to the directory of --vocab)")
	cmd.Flags().StringVar(&token, "hf-token", "", "Hugging Face token (defaults to $HF_TOKEN)")
	cmd.Flags().StringVar(&baseURL, "base-url", hub.DefaultBaseURL, "Hub base URL")

	return cmd
}
