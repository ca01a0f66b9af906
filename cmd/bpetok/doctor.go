package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-bpetok/internal/doctor"
	"github.com/example/go-bpetok/internal/hub"
	"github.com/example/go-bpetok/internal/text"
)

func newDoctorCmd() *cobra.Command {
	var sample string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configured vocab, merges and model settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			splitter, err := text.NewSplitter(cfg.Text.Splitter, cfg.Text.Pattern)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			result := doctor.Run(doctor.Config{
				VocabPath:  cfg.Paths.Vocab,
				MergesPath: cfg.Paths.Merges,
				Model:      cfg.BPE(),
				Sample:     sample,
				Splitter:   splitter,
				ByteLevel:  cfg.Text.ByteLevel,
			}, out)

			// Lock manifest written by "vocab download", if any.
			dir := filepath.Dir(cfg.Paths.Vocab)
			if _, statErr := os.Stat(filepath.Join(dir, hub.LockFile)); os.IsNotExist(statErr) {
				_, _ = fmt.Fprintf(out, "%s lock manifest: skipped (none in %s)\n", doctor.PassMark, dir)
			} else if verifyErr := hub.VerifyLock(dir); verifyErr != nil {
				result.AddFailure(fmt.Sprintf("lock manifest: %v", verifyErr))
				_, _ = fmt.Fprintf(out, "%s lock manifest: %v\n", doctor.FailMark, verifyErr)
			} else {
				_, _ = fmt.Fprintf(out, "%s lock manifest: ok\n", doctor.PassMark)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().StringVar(&sample, "sample", "", "Text to encode and decode as a round-trip check")

	return cmd
}
