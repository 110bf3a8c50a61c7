// Package memstore implements the database port in memory. It backs tests
// and deployments that run without Postgres; records do not survive a
// restart.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Store is an in-memory key/value record store. Values are stored as
// marshalled JSON so Load/Save round-trip identically to the Postgres
// adapter.
type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string][]byte)}
}

// Load reads the value stored under key into the destination.
func (s *Store) Load(_ context.Context, key string, into any) (bool, error) {
	s.mu.RLock()
	data, ok := s.records[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("memstore unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Save writes the value under key, replacing any previous value.
func (s *Store) Save(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memstore marshal %s: %w", key, err)
	}

	s.mu.Lock()
	s.records[key] = data
	s.mu.Unlock()
	return nil
}

// Keys lists stored keys with the given prefix.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
