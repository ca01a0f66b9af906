package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew_DisabledForNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		c := New[[]uint32](capacity)
		if c.Enabled() {
			t.Errorf("New(%d).Enabled() = true; want false", capacity)
		}

		c.Set("hello", []uint32{1})

		if _, ok := c.Get("hello"); ok {
			t.Errorf("New(%d): Get hit on disabled cache", capacity)
		}

		if c.Len() != 0 {
			t.Errorf("New(%d).Len() = %d; want 0", capacity, c.Len())
		}
	}
}

func TestNilCache_IsSafe(t *testing.T) {
	var c *Cache[string]

	c.Set("a", "b")
	c.Clear()

	if _, ok := c.Get("a"); ok {
		t.Error("nil cache returned a hit")
	}

	if c.Len() != 0 || c.Capacity() != 0 {
		t.Errorf("nil cache Len=%d Capacity=%d; want 0, 0", c.Len(), c.Capacity())
	}
}

func TestSetGet_Overwrite(t *testing.T) {
	c := New[string](4)

	c.Set("w", "first")
	c.Set("w", "second")

	got, ok := c.Get("w")
	if !ok {
		t.Fatal("Get(w) missed")
	}

	if got != "second" {
		t.Errorf("Get(w) = %q; want %q", got, "second")
	}

	if c.Len() != 1 {
		t.Errorf("Len() = %d; want 1", c.Len())
	}
}

func TestSet_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2)

	c.Set("a", 1)
	c.Set("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get(a) missed")
	}

	c.Set("c", 3)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", c.Len())
	}

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}

	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %q to be resident", k)
		}
	}
}

func TestClear(t *testing.T) {
	c := New[int](8)
	for i := range 5 {
		c.Set(fmt.Sprint(i), i)
	}

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d; want 0", c.Len())
	}

	if c.Capacity() != 8 {
		t.Errorf("Capacity() = %d; want 8", c.Capacity())
	}
}

func TestConcurrentAccess_NeverExceedsCapacity(t *testing.T) {
	const capacity = 16

	c := New[[]int](capacity)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 200 {
				key := fmt.Sprintf("w%d", (g*31+i)%40)
				c.Set(key, []int{i})

				if v, ok := c.Get(key); ok && len(v) != 1 {
					t.Errorf("corrupt entry for %q: %v", key, v)
				}
			}
		}()
	}

	wg.Wait()

	if c.Len() > capacity {
		t.Errorf("Len() = %d; want <= %d", c.Len(), capacity)
	}
}
