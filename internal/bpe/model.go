// Package bpe implements a byte-pair-encoding tokenization model.
//
// A Model is built once from a vocabulary and an ordered list of merge
// rules and is then safe for concurrent use. TokenizeWord turns one
// pre-split word into tokens by greedily applying the lowest-ranked merge
// among adjacent symbols until none applies. Normalization, pre-splitting
// and post-processing are the caller's job.
package bpe

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/example/go-bpetok/internal/cache"
	"golang.org/x/sync/errgroup"
)

// Model is an immutable BPE model plus its word cache.
type Model struct {
	cfg       Config
	vocab     *Vocabulary
	merges    map[pair]mergeEntry
	mergeList []Merge
	unkID     uint32
	hasUnk    bool
	cache     *cache.Cache[[]Token]
	random    func() float32
	log       *slog.Logger
}

// New validates cfg, the vocabulary and every merge rule, and returns a
// ready Model. No partial model is returned on error.
func New(vocab map[string]uint32, merges []Merge, cfg Config, optFns ...Option) (*Model, error) {
	opts := options{
		random: rand.Float32,
		logger: slog.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	v, err := NewVocabulary(vocab)
	if err != nil {
		return nil, err
	}

	m := &Model{
		cfg:       cfg,
		vocab:     v,
		mergeList: slices.Clone(merges),
		cache:     cache.New[[]Token](cfg.cacheCapacity()),
		random:    opts.random,
		log:       opts.logger,
	}

	if cfg.UnkToken != "" {
		id, ok := v.id(cfg.UnkToken)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTokenNotInVocab, cfg.UnkToken)
		}

		m.unkID, m.hasUnk = id, true
	}

	m.merges, err = buildMergeTable(v, merges, cfg.ContinuingSubwordPrefix)
	if err != nil {
		return nil, err
	}

	m.log.Debug("bpe model built",
		slog.Int("vocab_size", v.Len()),
		slog.Int("merges", len(merges)),
		slog.Int("cache_capacity", m.cache.Capacity()),
		slog.Float64("dropout", float64(cfg.dropout())),
	)

	return m, nil
}

// buildMergeTable resolves every merge to ids. The merged token is left
// followed by right with its continuing-subword prefix removed.
func buildMergeTable(v *Vocabulary, merges []Merge, prefix string) (map[pair]mergeEntry, error) {
	table := make(map[pair]mergeEntry, len(merges))

	for i, mg := range merges {
		left, ok := v.id(mg.Left)
		if !ok {
			return nil, &MergeRuleError{Index: i, Merge: mg, Missing: mg.Left}
		}

		right, ok := v.id(mg.Right)
		if !ok {
			return nil, &MergeRuleError{Index: i, Merge: mg, Missing: mg.Right}
		}

		suffix := mg.Right
		if prefix != "" {
			suffix = strings.TrimPrefix(suffix, prefix)
		}

		merged := mg.Left + suffix

		id, ok := v.id(merged)
		if !ok {
			return nil, &MergeRuleError{Index: i, Merge: mg, Missing: merged}
		}

		p := pair{left, right}
		if _, exists := table[p]; exists {
			// First occurrence keeps the lower rank.
			continue
		}

		table[p] = mergeEntry{rank: uint32(i), id: id}
	}

	return table, nil
}

// Config returns the configuration the model was built with.
func (m *Model) Config() Config { return m.cfg }

// Merges returns a copy of the merge rules in rank order.
func (m *Model) Merges() []Merge { return slices.Clone(m.mergeList) }

// dropoutActive reports whether tokenization is stochastic, in which case
// the cache is neither read nor written.
func (m *Model) dropoutActive() bool { return m.cfg.dropout() > 0 }

// ---------------------------------------------------------------------------
// Tokenize / encode
// ---------------------------------------------------------------------------

// TokenizeWord tokenizes one pre-split word. The returned slice is owned by
// the caller.
func (m *Model) TokenizeWord(w string) ([]Token, error) {
	if w == "" {
		return []Token{}, nil
	}

	m.vocab.mu.RLock()
	defer m.vocab.mu.RUnlock()

	useCache := !m.dropoutActive()
	if useCache {
		if hit, ok := m.cache.Get(w); ok {
			return slices.Clone(hit), nil
		}
	}

	if m.cfg.IgnoreMerges {
		if id, ok := m.vocab.id(w); ok {
			tokens := []Token{{ID: id, Value: w, Offsets: [2]int{0, len(w)}}}
			if useCache {
				m.cache.Set(w, slices.Clone(tokens))
			}

			return tokens, nil
		}
	}

	wd, err := m.splitWord(w)
	if err != nil {
		return nil, err
	}

	wd.mergeAll(m.merges, m.cfg.dropout(), m.random)

	tokens, err := m.wordToTokens(wd)
	if err != nil {
		return nil, err
	}

	if useCache {
		m.cache.Set(w, slices.Clone(tokens))
	}

	return tokens, nil
}

// splitWord builds the initial symbols: one per character, decorated with
// the continuing-subword prefix and end-of-word suffix, resolved through
// the vocabulary, byte fallback or the unk token.
func (m *Model) splitWord(w string) (*word, error) {
	wd := newWord(len(w))

	var (
		pendingUnk bool
		unkStart   int
		unkEnd     int
	)

	flushUnk := func() {
		if pendingUnk {
			wd.add(m.unkID, unkStart, unkEnd)
			pendingUnk = false
		}
	}

	for start := 0; start < len(w); {
		_, size := utf8.DecodeRuneInString(w[start:])
		end := start + size
		char := w[start:end]

		s := char
		if start > 0 && m.cfg.ContinuingSubwordPrefix != "" {
			s = m.cfg.ContinuingSubwordPrefix + s
		}

		if end == len(w) && m.cfg.EndOfWordSuffix != "" {
			s += m.cfg.EndOfWordSuffix
		}

		if id, ok := m.vocab.id(s); ok {
			flushUnk()
			wd.add(id, start, end)
			start = end

			continue
		}

		if m.cfg.ByteFallback {
			if ids, ok := m.byteFallback(char); ok {
				flushUnk()

				for i, id := range ids {
					wd.add(id, start+i, start+i+1)
				}

				start = end

				continue
			}
		}

		if !m.hasUnk {
			return nil, &UnmappableCharacterError{Word: w, Char: char, Offset: start}
		}

		switch {
		case pendingUnk && m.cfg.FuseUnk:
			unkEnd = end
		default:
			flushUnk()
			pendingUnk, unkStart, unkEnd = true, start, end
		}

		start = end
	}

	flushUnk()

	return wd, nil
}

// byteFallback maps every byte of char to its byte token. It fails if any
// byte token is missing.
func (m *Model) byteFallback(char string) ([]uint32, bool) {
	format := m.cfg.byteFallbackFormat()

	ids := make([]uint32, 0, len(char))
	for i := 0; i < len(char); i++ {
		id, ok := m.vocab.id(fmt.Sprintf(format, char[i]))
		if !ok {
			return nil, false
		}

		ids = append(ids, id)
	}

	return ids, true
}

func (m *Model) wordToTokens(wd *word) ([]Token, error) {
	symbols := wd.live()

	tokens := make([]Token, 0, len(symbols))
	for _, s := range symbols {
		value, ok := m.vocab.token(s.id)
		if !ok {
			return nil, &UnknownIDError{ID: s.id}
		}

		tokens = append(tokens, Token{ID: s.id, Value: value, Offsets: [2]int{s.start, s.end}})
	}

	return tokens, nil
}

// EncodeSequence tokenizes each word in order and concatenates the ids.
func (m *Model) EncodeSequence(words []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(words))

	for i, w := range words {
		tokens, err := m.TokenizeWord(w)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", i, err)
		}

		for _, t := range tokens {
			ids = append(ids, t.ID)
		}
	}

	return ids, nil
}

// EncodeBatch runs EncodeSequence for every item of batch using at most
// workers goroutines (workers <= 0 means one per item). Results are in
// input order. The first error cancels the remaining work.
func (m *Model) EncodeBatch(ctx context.Context, batch [][]string, workers int) ([][]uint32, error) {
	out := make([][]uint32, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, words := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			ids, err := m.EncodeSequence(words)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}

			out[i] = ids

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// ---------------------------------------------------------------------------
// Decode / vocabulary access
// ---------------------------------------------------------------------------

// Decode concatenates the token strings of ids. Continuing-subword
// prefixes and end-of-word suffixes are left in place.
func (m *Model) Decode(ids []uint32) (string, error) {
	m.vocab.mu.RLock()
	defer m.vocab.mu.RUnlock()

	var sb strings.Builder
	for _, id := range ids {
		t, ok := m.vocab.token(id)
		if !ok {
			return "", &UnknownIDError{ID: id}
		}

		sb.WriteString(t)
	}

	return sb.String(), nil
}

// TokenToID returns the id of token.
func (m *Model) TokenToID(token string) (uint32, bool) { return m.vocab.ID(token) }

// IDToToken returns the token string of id.
func (m *Model) IDToToken(id uint32) (string, bool) { return m.vocab.Token(id) }

// Vocab returns a copy of the vocabulary.
func (m *Model) Vocab() map[string]uint32 { return m.vocab.Map() }

// VocabSize returns the number of vocabulary entries.
func (m *Model) VocabSize() int { return m.vocab.Len() }

// AddTokens appends tokens missing from the vocabulary and returns how many
// were added. The word cache is cleared under the same lock, since new
// single-character tokens can change how words tokenize.
func (m *Model) AddTokens(tokens ...string) int {
	m.vocab.mu.Lock()
	defer m.vocab.mu.Unlock()

	added := m.vocab.add(tokens)
	if added > 0 {
		m.cache.Clear()
	}

	return added
}

// CacheLen returns the number of cached words.
func (m *Model) CacheLen() int { return m.cache.Len() }

// ClearCache drops every cached word.
func (m *Model) ClearCache() { m.cache.Clear() }
