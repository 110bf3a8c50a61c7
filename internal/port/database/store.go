// Package database defines the port interface for durable key/value
// persistence of tasks, interactions and metrics.
package database

import "context"

// Store persists JSON-serializable records by key. Implementations are
// expected to be durable but not transactional across keys.
type Store interface {
	// Load reads the value stored under key into the given destination.
	// A missing key leaves the destination untouched and returns
	// (false, nil).
	Load(ctx context.Context, key string, into any) (bool, error)

	// Save writes the value under key, replacing any previous value.
	Save(ctx context.Context, key string, value any) error

	// Keys lists the stored keys matching the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
