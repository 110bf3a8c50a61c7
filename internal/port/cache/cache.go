// Package cache defines the port interface for the bounded response cache.
package cache

import "time"

// Entry is a memoized provider response. Entries carry their own creation
// timestamp; the cache itself never expires anything — callers that need
// TTL semantics compare CachedAt themselves.
type Entry struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CachedAt   time.Time `json:"cached_at"`
}

// Cache is the port interface for the bounded response cache. Size never
// exceeds the configured capacity; inserting past capacity silently evicts
// the least recently accessed entry. Get refreshes recency.
type Cache interface {
	Set(key string, entry Entry)
	Get(key string) (Entry, bool)
	Has(key string) bool
	Delete(key string)
	Len() int
}
