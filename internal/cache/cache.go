// Package cache provides the bounded word cache used by the BPE engine.
//
// A Cache memoizes the token sequence computed for a raw word so repeated
// words skip the merge loop. It is safe for concurrent use. A nil *Cache, or
// one created with a non-positive capacity, is a valid disabled cache: Get
// always misses and Set is a no-op.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a least-recently-used map from word to V holding at most
// Capacity entries.
type Cache[V any] struct {
	capacity int
	entries  *lru.Cache[string, V]
}

// New returns a cache holding at most capacity entries. capacity <= 0
// returns a disabled cache.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		return &Cache[V]{}
	}

	entries, err := lru.New[string, V](capacity)
	if err != nil {
		// lru.New only fails for non-positive sizes, handled above.
		return &Cache[V]{}
	}

	return &Cache[V]{capacity: capacity, entries: entries}
}

// Enabled reports whether the cache stores anything.
func (c *Cache[V]) Enabled() bool {
	return c != nil && c.entries != nil
}

// Get returns the value stored for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	if !c.Enabled() {
		var zero V
		return zero, false
	}

	return c.entries.Get(key)
}

// Set inserts or overwrites the value for key, evicting the least recently
// used entry when the cache is full.
func (c *Cache[V]) Set(key string, v V) {
	if !c.Enabled() {
		return
	}

	c.entries.Add(key, v)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	if !c.Enabled() {
		return
	}

	c.entries.Purge()
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int {
	if !c.Enabled() {
		return 0
	}

	return c.entries.Len()
}

// Capacity returns the maximum number of resident entries, 0 when disabled.
func (c *Cache[V]) Capacity() int {
	if c == nil {
		return 0
	}

	return c.capacity
}
