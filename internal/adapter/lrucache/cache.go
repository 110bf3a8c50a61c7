// Package lrucache implements the response cache port as a fixed-capacity
// in-process LRU.
package lrucache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/verdealab/ceres/internal/port/cache"
)

// Cache is a bounded LRU response cache. Inserting past capacity evicts
// the least recently accessed entry silently; Get refreshes recency.
type Cache struct {
	c *lru.Cache[string, cache.Entry]
}

// New creates a cache holding at most maxEntries responses.
func New(maxEntries int) (*Cache, error) {
	c, err := lru.New[string, cache.Entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Set stores an entry, evicting the oldest-accessed one when full.
func (c *Cache) Set(key string, entry cache.Entry) {
	c.c.Add(key, entry)
}

// Get retrieves an entry and marks it as recently used.
func (c *Cache) Get(key string) (cache.Entry, bool) {
	return c.c.Get(key)
}

// Has reports whether the key is cached without refreshing recency.
func (c *Cache) Has(key string) bool {
	return c.c.Contains(key)
}

// Delete removes an entry.
func (c *Cache) Delete(key string) {
	c.c.Remove(key)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.c.Len()
}
