// Package memory archives monitor snapshots in-memory for development.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store keeps the latest snapshot per key and returns pseudo URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New constructs a Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put stores a copy of the content and returns a memory:// URI.
func (s *Store) Put(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns a copy of the stored content, or (nil, nil) when no
// snapshot exists for the key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}
