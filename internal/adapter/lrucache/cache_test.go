package lrucache

import (
	"fmt"
	"testing"
	"time"

	"github.com/verdealab/ceres/internal/port/cache"
)

func entry(text string) cache.Entry {
	return cache.Entry{Text: text, Confidence: 0.9, CachedAt: time.Now()}
}

func TestSetGet(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Set("k1", entry("hello"))

	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected k1 to be cached")
	}
	if got.Text != "hello" {
		t.Errorf("expected %q, got %q", "hello", got.Text)
	}
	if !c.Has("k1") {
		t.Error("Has(k1) = false, want true")
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	const maxEntries = 8
	c, err := New(maxEntries)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := range 50 {
		c.Set(fmt.Sprintf("k%d", i), entry("v"))
		if c.Len() > maxEntries {
			t.Fatalf("after %d inserts: len %d exceeds capacity %d", i+1, c.Len(), maxEntries)
		}
	}
	if c.Len() != maxEntries {
		t.Errorf("len = %d, want %d", c.Len(), maxEntries)
	}
}

func TestEvictsLeastRecentlyAccessed(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Set("a", entry("a"))
	c.Set("b", entry("b"))

	// Touch "a" so "b" becomes the oldest-accessed entry.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}

	c.Set("c", entry("c"))

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be cached")
	}
}

func TestDelete(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Set("a", entry("a"))
	c.Delete("a")

	if c.Has("a") {
		t.Error("expected a to be gone after Delete")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}
