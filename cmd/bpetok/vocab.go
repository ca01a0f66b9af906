package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-bpetok/internal/vocabfile"
)

func newVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect and export the vocabulary",
	}

	cmd.AddCommand(newVocabSizeCmd())
	cmd.AddCommand(newVocabLookupCmd())
	cmd.AddCommand(newVocabIDCmd())
	cmd.AddCommand(newVocabExportCmd())
	cmd.AddCommand(newVocabDownloadCmd())

	return cmd
}

func newVocabSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the number of vocabulary entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok.Model().VocabSize())
			return err
		},
	}
}

func newVocabLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup TOKEN...",
		Short: "Print the id of each token",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			for _, t := range args {
				id, ok := tok.Model().TokenToID(t)
				if !ok {
					return fmt.Errorf("token %q is not in the vocabulary", t)
				}

				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", t, id); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func newVocabIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id ID...",
		Short: "Print the token of each id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			for _, id := range ids {
				t, ok := tok.Model().IDToToken(id)
				if !ok {
					return fmt.Errorf("id %d is not in the vocabulary", id)
				}

				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", id, t); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func newVocabExportCmd() *cobra.Command {
	var (
		out       string
		mergesOut string
		add       []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the vocabulary (and optionally merges) back to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			m := tok.Model()
			if len(add) > 0 {
				n := m.AddTokens(add...)
				fmt.Fprintf(cmd.ErrOrStderr(), "added %d tokens\n", n)
			}

			if err := writeTo(out, cmd.OutOrStdout(), func(w io.Writer) error {
				return vocabfile.WriteVocab(w, m.Vocab())
			}); err != nil {
				return err
			}

			if mergesOut == "" {
				return nil
			}

			return writeTo(mergesOut, cmd.OutOrStdout(), func(w io.Writer) error {
				return vocabfile.WriteMerges(w, m.Merges())
			})
		},
	}

	cmd.Flags().StringVar(&out, "out", "-", "Vocab output path ('-' for stdout)")
	cmd.Flags().StringVar(&mergesOut, "merges-out", "", "Merges output path (empty skips, '-' for stdout)")
	cmd.Flags().StringSliceVar(&add, "add", nil, "Tokens to append to the vocabulary before exporting")

	return cmd
}

// writeTo runs write against stdout when path is "-", otherwise against a
// newly created file at path.
func writeTo(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}

	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
