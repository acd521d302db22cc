// Package memory provides an in-memory StatsStore for development/testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type entry struct {
	stats     webintel.ProviderStats
	expiresAt time.Time
}

// Store keeps provider stats in a mutex-guarded map with per-key expiry.
type Store struct {
	clock webintel.Clock

	mu      sync.RWMutex
	entries map[string]entry
}

// New constructs a Store.
func New(clock webintel.Clock) *Store {
	return &Store{clock: clock, entries: make(map[string]entry)}
}

// Get returns the stats for a provider, or (nil, nil) when the key is
// absent or expired. Expiry resets a provider to the neutral prior.
func (s *Store) Get(_ context.Context, providerID string) (*webintel.ProviderStats, error) {
	s.mu.RLock()
	e, ok := s.entries[providerID]
	s.mu.RUnlock()
	if !ok || s.clock.Now().After(e.expiresAt) {
		return nil, nil
	}
	cp := e.stats
	return &cp, nil
}

// Set stores the stats with the given TTL.
func (s *Store) Set(_ context.Context, providerID string, stats webintel.ProviderStats, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[providerID] = entry{stats: stats, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}
