package lfucache

import "testing"

func TestGetSetBasic(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("got (%v, %v), want (1, true)", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1,1", hits, misses)
	}
}

func TestEvictsLeastFrequentlyUsed(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	// Touch "a" so it has a higher frequency than "b".
	c.Get("a")

	// Capacity reached; inserting "c" must evict "b" (freq 1, coldest).
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Errorf("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Errorf("expected a to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Errorf("expected c to survive")
	}
}

func TestEqualFrequencyEvictsOldestInsertion(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	// Neither touched: both at freq 1. "a" was inserted first, so it's
	// the coldest and should be evicted first.
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Errorf("expected b to survive")
	}
}

func TestResetStats(t *testing.T) {
	c := New[string, int](1)
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	c.ResetStats()
	hits, misses := c.Stats()
	if hits != 0 || misses != 0 {
		t.Errorf("hits=%d misses=%d, want 0,0", hits, misses)
	}
}
