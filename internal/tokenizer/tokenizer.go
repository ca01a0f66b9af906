// Package tokenizer runs the full text pipeline around a BPE model:
// normalization, pre-tokenization into words, and batched encoding.
package tokenizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-bpetok/internal/bpe"
	"github.com/example/go-bpetok/internal/config"
	"github.com/example/go-bpetok/internal/text"
	"github.com/example/go-bpetok/internal/vocabfile"
)

// DefaultChunkBytes bounds the word text handed to one EncodeBatch item.
const DefaultChunkBytes = 4096

type options struct {
	chunkBytes int
	workers    int
	byteLevel  bool
	logger     *slog.Logger
}

// Option configures a Tokenizer.
type Option func(*options)

// WithChunkBytes sets how many bytes of words are encoded per batch item.
func WithChunkBytes(n int) Option {
	return func(o *options) { o.chunkBytes = n }
}

// WithWorkers bounds the goroutines used per Encode call. 0 means one per chunk.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithByteLevel maps every word to the GPT-2 byte-level alphabet before
// tokenization and maps decoded text back to raw bytes.
func WithByteLevel(on bool) Option {
	return func(o *options) { o.byteLevel = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Tokenizer encodes raw text with a BPE model.
type Tokenizer struct {
	model    *bpe.Model
	splitter text.Splitter
	form     text.Form
	opts     options
}

// New returns a Tokenizer over model.
func New(model *bpe.Model, splitter text.Splitter, form text.Form, optFns ...Option) *Tokenizer {
	opts := options{
		chunkBytes: DefaultChunkBytes,
		logger:     slog.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Tokenizer{
		model:    model,
		splitter: splitter,
		form:     form,
		opts:     opts,
	}
}

// FromConfig loads the model files named in cfg and builds a Tokenizer with
// the configured splitter and normalization form.
func FromConfig(cfg config.Config, optFns ...Option) (*Tokenizer, error) {
	splitter, err := text.NewSplitter(cfg.Text.Splitter, cfg.Text.Pattern)
	if err != nil {
		return nil, err
	}

	form, err := text.ParseForm(cfg.Text.Normalize)
	if err != nil {
		return nil, err
	}

	optFns = append([]Option{WithByteLevel(cfg.Text.ByteLevel)}, optFns...)
	t := New(nil, splitter, form, optFns...)

	model, err := vocabfile.Load(cfg.Paths.Vocab, cfg.Paths.Merges, cfg.BPE(), bpe.WithLogger(t.opts.logger))
	if err != nil {
		return nil, err
	}

	t.model = model

	t.opts.logger.Info("tokenizer ready",
		slog.String("vocab", cfg.Paths.Vocab),
		slog.String("merges", cfg.Paths.Merges),
		slog.Int("vocab_size", model.VocabSize()),
		slog.String("splitter", cfg.Text.Splitter),
		slog.String("normalize", string(form)),
		slog.Bool("byte_level", t.opts.byteLevel),
	)

	return t, nil
}

// Model returns the underlying BPE model.
func (t *Tokenizer) Model() *bpe.Model { return t.model }

// Words normalizes s and splits it into words. Offsets are into the
// normalized text.
func (t *Tokenizer) Words(s string) (string, []text.Word, error) {
	normalized, err := text.NormalizeForm(s, t.form)
	if err != nil {
		return "", nil, err
	}

	words, err := t.splitter.Split(normalized)
	if err != nil {
		return "", nil, err
	}

	return normalized, words, nil
}

// Encode normalizes, splits and encodes s.
func (t *Tokenizer) Encode(ctx context.Context, s string) ([]uint32, error) {
	_, words, err := t.Words(s)
	if err != nil {
		return nil, err
	}

	return t.EncodeWords(ctx, text.Texts(words))
}

// EncodeWords encodes already split words. Chunks of words are encoded in
// parallel and concatenated in order.
func (t *Tokenizer) EncodeWords(ctx context.Context, words []string) ([]uint32, error) {
	if t.opts.byteLevel {
		mapped := make([]string, len(words))
		for i, w := range words {
			mapped[i] = text.ByteLevel(w)
		}

		words = mapped
	}

	chunks := text.ChunkWords(words, t.opts.chunkBytes)

	batch, err := t.model.EncodeBatch(ctx, chunks, t.opts.workers)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	ids := make([]uint32, 0, len(words))
	for _, b := range batch {
		ids = append(ids, b...)
	}

	return ids, nil
}

// Tokens normalizes and splits s, then tokenizes every word. Token offsets
// are byte offsets into the normalized text, which is also returned.
func (t *Tokenizer) Tokens(s string) (string, []bpe.Token, error) {
	normalized, words, err := t.Words(s)
	if err != nil {
		return "", nil, err
	}

	var tokens []bpe.Token

	for i, w := range words {
		wt, err := t.TokenizeWord(w.Text)
		if err != nil {
			return "", nil, fmt.Errorf("word %d: %w", i, err)
		}

		for _, tok := range wt {
			tok.Offsets[0] += w.Offset
			tok.Offsets[1] += w.Offset
			tokens = append(tokens, tok)
		}
	}

	return normalized, tokens, nil
}

// TokenizeWord tokenizes a single word without normalization or splitting.
// Offsets are byte offsets into w, also when byte-level mapping is on.
func (t *Tokenizer) TokenizeWord(w string) ([]bpe.Token, error) {
	if !t.opts.byteLevel {
		return t.model.TokenizeWord(w)
	}

	mapped := text.ByteLevel(w)

	tokens, err := t.model.TokenizeWord(mapped)
	if err != nil {
		return nil, err
	}

	for i := range tokens {
		tokens[i].Offsets[0] = text.ByteLevelOffset(mapped, tokens[i].Offsets[0])
		tokens[i].Offsets[1] = text.ByteLevelOffset(mapped, tokens[i].Offsets[1])
	}

	return tokens, nil
}

// Decode maps ids back to the concatenated token strings, reversing the
// byte-level mapping when it is on.
func (t *Tokenizer) Decode(ids []uint32) (string, error) {
	s, err := t.model.Decode(ids)
	if err != nil || !t.opts.byteLevel {
		return s, err
	}

	return text.ByteLevelDecode(s), nil
}

// ClearCache drops the model's cached words.
func (t *Tokenizer) ClearCache() { t.model.ClearCache() }
