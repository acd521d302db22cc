package memory

import (
	"context"
	"sync"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// MonitorStore keeps monitor definitions and the owner index in
// mutex-guarded maps. The owner index is a separate record, mirroring
// the durable layout.
type MonitorStore struct {
	mu       sync.RWMutex
	monitors map[string]webintel.MonitorDefinition
	owners   map[string][]string
}

// NewMonitorStore constructs a MonitorStore.
func NewMonitorStore() *MonitorStore {
	return &MonitorStore{
		monitors: make(map[string]webintel.MonitorDefinition),
		owners:   make(map[string][]string),
	}
}

// Put stores the monitor record.
func (s *MonitorStore) Put(_ context.Context, def webintel.MonitorDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors[def.ID] = def
	return nil
}

// Get returns the monitor or webintel.ErrMonitorNotFound.
func (s *MonitorStore) Get(_ context.Context, id string) (webintel.MonitorDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.monitors[id]
	if !ok {
		return webintel.MonitorDefinition{}, webintel.ErrMonitorNotFound
	}
	return def, nil
}

// Delete removes the monitor record. Deleting an absent monitor
// returns webintel.ErrMonitorNotFound.
func (s *MonitorStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[id]; !ok {
		return webintel.ErrMonitorNotFound
	}
	delete(s.monitors, id)
	return nil
}

// AppendOwnerIndex adds the monitor id to the owner's index record.
func (s *MonitorStore) AppendOwnerIndex(_ context.Context, ownerID, monitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.owners[ownerID] {
		if existing == monitorID {
			return nil
		}
	}
	s.owners[ownerID] = append(s.owners[ownerID], monitorID)
	return nil
}

// RemoveOwnerIndex drops the monitor id from the owner's index record.
func (s *MonitorStore) RemoveOwnerIndex(_ context.Context, ownerID, monitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.owners[ownerID]
	for i, existing := range ids {
		if existing == monitorID {
			s.owners[ownerID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

// ListByOwner returns the owner's monitor ids.
func (s *MonitorStore) ListByOwner(_ context.Context, ownerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.owners[ownerID]...), nil
}

// ListActive returns every monitor with active status.
func (s *MonitorStore) ListActive(_ context.Context) ([]webintel.MonitorDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]webintel.MonitorDefinition, 0, len(s.monitors))
	for _, def := range s.monitors {
		if def.Status == webintel.MonitorActive {
			active = append(active, def)
		}
	}
	return active, nil
}
