package bpe

import (
	"cmp"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
)

// pair is an adjacent (left, right) id pair.
type pair struct {
	left, right uint32
}

// mergeEntry is the precomputed result of merging a pair.
type mergeEntry struct {
	rank uint32
	id   uint32
}

// symbol is one node of a word's doubly linked list. start and end are byte
// offsets into the raw word; a symbol merged into its left neighbour has
// start == end.
type symbol struct {
	id         uint32
	start, end int
	prev, next int
}

func (s symbol) removed() bool { return s.start == s.end }

// word is the mutable per-call state of the merge loop.
type word struct {
	symbols []symbol
}

func newWord(capacity int) *word {
	return &word{symbols: make([]symbol, 0, capacity)}
}

// add appends a symbol covering [start, end) of the raw word.
func (w *word) add(id uint32, start, end int) {
	n := len(w.symbols)
	if n > 0 {
		w.symbols[n-1].next = n
	}

	w.symbols = append(w.symbols, symbol{
		id:    id,
		start: start,
		end:   end,
		prev:  n - 1,
		next:  -1,
	})
}

// candidate is a queued merge of the symbol at pos with its right neighbour.
type candidate struct {
	pos  int
	rank uint32
	id   uint32
}

// compareCandidates orders by rank, then leftmost position.
func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(a.rank, b.rank); c != 0 {
		return c
	}

	return cmp.Compare(a.pos, b.pos)
}

// mergeAll applies merges until no adjacent pair has a rule. With dropout
// > 0 each popped candidate is skipped with that probability; skipped
// candidates are re-queued once a merge is applied, so the loop stops when
// every remaining candidate was dropped in the current pass.
func (w *word) mergeAll(merges map[pair]mergeEntry, dropout float32, random func() float32) {
	queue := binaryheap.NewWith(compareCandidates)

	for i := 0; i+1 < len(w.symbols); i++ {
		if m, ok := merges[pair{w.symbols[i].id, w.symbols[i+1].id}]; ok {
			queue.Push(candidate{pos: i, rank: m.rank, id: m.id})
		}
	}

	var skipped []candidate

	for {
		top, ok := queue.Pop()
		if !ok {
			break
		}

		if dropout > 0 && random() < dropout {
			skipped = append(skipped, top)
			continue
		}

		if len(skipped) > 0 {
			queue.Push(skipped...)
			skipped = skipped[:0]
		}

		cur := w.symbols[top.pos]
		if cur.removed() || cur.next < 0 {
			continue
		}

		right := w.symbols[cur.next]

		// Stale when either side changed since the candidate was queued.
		m, ok := merges[pair{cur.id, right.id}]
		if !ok || m.id != top.id || m.rank != top.rank {
			continue
		}

		w.symbols[top.pos].id = m.id
		w.symbols[top.pos].end = right.end
		w.symbols[top.pos].next = right.next
		w.symbols[cur.next].end = w.symbols[cur.next].start

		if right.next >= 0 {
			w.symbols[right.next].prev = top.pos
		}

		merged := w.symbols[top.pos]
		if merged.prev >= 0 {
			if m, ok := merges[pair{w.symbols[merged.prev].id, merged.id}]; ok {
				queue.Push(candidate{pos: merged.prev, rank: m.rank, id: m.id})
			}
		}

		if merged.next >= 0 {
			if m, ok := merges[pair{merged.id, w.symbols[merged.next].id}]; ok {
				queue.Push(candidate{pos: top.pos, rank: m.rank, id: m.id})
			}
		}
	}
}

// live returns the remaining symbols in order.
func (w *word) live() []symbol {
	out := make([]symbol, 0, len(w.symbols))
	for i := 0; i >= 0 && i < len(w.symbols); i = w.symbols[i].next {
		out = append(out, w.symbols[i])
	}

	return out
}
