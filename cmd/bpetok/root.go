package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-bpetok/internal/config"
	"github.com/example/go-bpetok/internal/server"
	"github.com/example/go-bpetok/internal/tokenizer"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "bpetok",
		Short:         "Byte-pair-encoding tokenizer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newTokenizeCmd())
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newVocabCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Paths.Vocab == "" || activeCfg.Paths.Merges == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// loadTokenizer builds the tokenizer described by the active config.
func loadTokenizer() (*tokenizer.Tokenizer, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, err
	}

	return tokenizer.FromConfig(cfg, tokenizer.WithWorkers(cfg.Server.Workers))
}

// readInput returns text when set, otherwise the contents of file, where ""
// and "-" mean stdin.
func readInput(text, file string, stdin io.Reader) (string, error) {
	if text != "" {
		return text, nil
	}

	var (
		b   []byte
		err error
	)

	switch file {
	case "", "-":
		b, err = io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
	default:
		b, err = os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
	}

	input := strings.TrimRight(string(b), "\r\n")
	if strings.TrimSpace(input) == "" {
		return "", errors.New("either provide --text, --file or pipe text on stdin")
	}

	return input, nil
}
