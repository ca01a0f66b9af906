package bpe

import (
	"fmt"
	"log/slog"
)

const (
	// DefaultCacheCapacity is used when Config.CacheCapacity is zero.
	DefaultCacheCapacity = 10000
	// DefaultByteFallbackFormat renders a byte as its fallback token, e.g. <0x0A>.
	DefaultByteFallbackFormat = "<0x%02X>"
)

// Merge is a merge rule. Its rank is its index in the merges list passed
// to New; lower ranks are applied first.
type Merge struct {
	Left  string
	Right string
}

// Token is one output token of TokenizeWord. Offsets are byte offsets
// [start, end) into the word that was tokenized.
type Token struct {
	ID      uint32 `json:"id"`
	Value   string `json:"value"`
	Offsets [2]int `json:"offsets"`
}

// Config holds the build-time settings of a Model. The zero value is a
// plain BPE model with no unk token, no markers, no dropout and a default
// sized cache.
type Config struct {
	// UnkToken replaces characters with no vocabulary entry. Empty means unset.
	UnkToken string
	// ContinuingSubwordPrefix is prepended to every symbol but the first.
	ContinuingSubwordPrefix string
	// EndOfWordSuffix is appended to the last symbol.
	EndOfWordSuffix string
	// FuseUnk collapses consecutive unk substitutions into one token.
	FuseUnk bool
	// ByteFallback maps unknown characters to per-byte tokens before
	// falling back to UnkToken.
	ByteFallback bool
	// ByteFallbackFormat is the fmt format of byte tokens. Empty means
	// DefaultByteFallbackFormat.
	ByteFallbackFormat string
	// Dropout is the probability of skipping a merge. Nil means unset; 0 has
	// no effect.
	Dropout *float32
	// CacheCapacity bounds the word cache. 0 means DefaultCacheCapacity and
	// a negative value disables caching.
	CacheCapacity int
	// IgnoreMerges returns a word as a single token when the whole word is
	// in the vocabulary.
	IgnoreMerges bool
}

// Dropout returns a pointer to p for use in Config.Dropout.
func Dropout(p float32) *float32 { return &p }

func (c Config) validate() error {
	if c.Dropout != nil && (*c.Dropout < 0 || *c.Dropout > 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidDropout, *c.Dropout)
	}

	return nil
}

func (c Config) dropout() float32 {
	if c.Dropout == nil {
		return 0
	}

	return *c.Dropout
}

func (c Config) byteFallbackFormat() string {
	if c.ByteFallbackFormat == "" {
		return DefaultByteFallbackFormat
	}

	return c.ByteFallbackFormat
}

func (c Config) cacheCapacity() int {
	switch {
	case c.CacheCapacity == 0:
		return DefaultCacheCapacity
	case c.CacheCapacity < 0:
		return 0
	default:
		return c.CacheCapacity
	}
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type options struct {
	random func() float32
	logger *slog.Logger
}

// Option configures runtime collaborators of a Model that are not part of
// its Config.
type Option func(*options)

// WithRandom sets the source of uniform [0, 1) samples used by dropout.
func WithRandom(fn func() float32) Option {
	return func(o *options) { o.random = fn }
}

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
