package bpe

import (
	"fmt"
	"maps"
	"sync"
)

// Vocabulary is a bijection between token strings and ids.
//
// Lookups are safe for concurrent use. Add takes the write lock; the Model
// holds the read lock for the duration of a tokenize or decode call so that
// a call observes a single consistent vocabulary.
type Vocabulary struct {
	mu     sync.RWMutex
	ids    map[string]uint32
	tokens map[uint32]string
	next   uint32
}

// NewVocabulary copies m into a new Vocabulary. Ids need not be contiguous
// but must be unique.
func NewVocabulary(m map[string]uint32) (*Vocabulary, error) {
	v := &Vocabulary{
		ids:    make(map[string]uint32, len(m)),
		tokens: make(map[uint32]string, len(m)),
	}

	for token, id := range m {
		if prev, exists := v.tokens[id]; exists {
			return nil, fmt.Errorf("%w: %d used by %q and %q", ErrDuplicateID, id, prev, token)
		}

		v.ids[token] = id
		v.tokens[id] = token

		if id >= v.next {
			v.next = id + 1
		}
	}

	return v, nil
}

// ID returns the id of token.
func (v *Vocabulary) ID(token string) (uint32, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.id(token)
}

// Token returns the token string for id.
func (v *Vocabulary) Token(id uint32) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.token(id)
}

// Len returns the number of tokens.
func (v *Vocabulary) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return len(v.ids)
}

// Map returns a copy of the token to id mapping.
func (v *Vocabulary) Map() map[string]uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return maps.Clone(v.ids)
}

// Add appends tokens not already present, assigning ids after the current
// highest id in argument order. It returns the number of tokens added.
func (v *Vocabulary) Add(tokens ...string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.add(tokens)
}

func (v *Vocabulary) add(tokens []string) int {
	added := 0
	for _, t := range tokens {
		if _, exists := v.ids[t]; exists {
			continue
		}

		v.ids[t] = v.next
		v.tokens[v.next] = t
		v.next++
		added++
	}

	return added
}

// id and token expect the caller to hold mu.
func (v *Vocabulary) id(token string) (uint32, bool) {
	id, ok := v.ids[token]
	return id, ok
}

func (v *Vocabulary) token(id uint32) (string, bool) {
	t, ok := v.tokens[id]
	return t, ok
}
