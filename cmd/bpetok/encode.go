package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-bpetok/internal/bpe"
	"github.com/example/go-bpetok/internal/text"
)

const (
	formatIDs    = "ids"
	formatJSON   = "json"
	formatTokens = "tokens"
)

func newEncodeCmd() *cobra.Command {
	var (
		input  string
		file   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode text into token ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != formatIDs && format != formatJSON && format != formatTokens {
				return fmt.Errorf("--format must be 'ids', 'json' or 'tokens'")
			}

			s, err := readInput(input, file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if format == formatTokens {
				_, tokens, err := tok.Tokens(s)
				if err != nil {
					return err
				}
				return writeTokens(out, tokens)
			}

			ids, err := tok.Encode(cmd.Context(), s)
			if err != nil {
				return err
			}

			if format == formatJSON {
				return json.NewEncoder(out).Encode(struct {
					IDs []uint32 `json:"ids"`
				}{IDs: ids})
			}

			return writeIDs(out, ids)
		},
	}

	cmd.Flags().StringVar(&input, "text", "", "Text to encode")
	cmd.Flags().StringVar(&file, "file", "", "Read text from file ('-' or empty for stdin)")
	cmd.Flags().StringVar(&format, "format", formatIDs, "Output format: ids|json|tokens")

	return cmd
}

func newTokenizeCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tokenize WORD...",
		Short: "Tokenize pre-split words without normalization",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatTokens && format != formatJSON {
				return fmt.Errorf("--format must be 'tokens' or 'json'")
			}

			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetEscapeHTML(false)

			for _, w := range args {
				tokens, err := tok.TokenizeWord(w)
				if err != nil {
					return err
				}

				if format == formatJSON {
					if err := enc.Encode(struct {
						Word   string      `json:"word"`
						Tokens []bpe.Token `json:"tokens"`
					}{Word: w, Tokens: tokens}); err != nil {
						return err
					}

					continue
				}

				if err := writeTokens(out, tokens); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTokens, "Output format: tokens|json")

	return cmd
}

func newDecodeCmd() *cobra.Command {
	var strip bool

	cmd := &cobra.Command{
		Use:   "decode [ID...]",
		Short: "Decode token ids into text (ids from args or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := args
			if len(fields) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				fields = strings.Fields(string(b))
			}

			ids, err := parseIDs(fields)
			if err != nil {
				return err
			}

			tok, err := loadTokenizer()
			if err != nil {
				return err
			}

			s, err := tok.Decode(ids)
			if err != nil {
				return err
			}

			if strip {
				mc := tok.Model().Config()
				s = text.StripMarkers(s, mc.ContinuingSubwordPrefix, mc.EndOfWordSuffix)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
			return err
		},
	}

	cmd.Flags().BoolVar(&strip, "strip-markers", false, "Remove subword prefixes and turn word suffixes into spaces")

	return cmd
}

// parseIDs parses decimal uint32 ids. Commas are accepted as separators.
func parseIDs(fields []string) ([]uint32, error) {
	var ids []uint32

	for _, f := range fields {
		for _, part := range strings.Split(f, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			id, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid token id %q: %w", part, err)
			}

			ids = append(ids, uint32(id))
		}
	}

	if len(ids) == 0 {
		return nil, errors.New("no token ids given")
	}

	return ids, nil
}

func writeIDs(w io.Writer, ids []uint32) error {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}

	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

// writeTokens prints one "id<TAB>value<TAB>start:end" line per token.
func writeTokens(w io.Writer, tokens []bpe.Token) error {
	for _, t := range tokens {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%d:%d\n", t.ID, t.Value, t.Offsets[0], t.Offsets[1]); err != nil {
			return err
		}
	}

	return nil
}
