package state

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore implements Store using an in-memory map. It backs
// development mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]map[string]any
}

type recordKey struct {
	sessionID string
	name      string
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]map[string]any)}
}

// Get retrieves a record. Returns nil, nil if none exists.
func (s *MemoryStore) Get(_ context.Context, sessionID, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.records[recordKey{sessionID, name}]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	return &Record{
		SessionID: sessionID,
		Name:      name,
		Data:      maps.Clone(data),
	}, nil
}

// Put atomically creates or fully replaces a record.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[recordKey{rec.SessionID, rec.Name}] = maps.Clone(rec.Data)
	return nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(_ context.Context, sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, recordKey{sessionID, name})
	return nil
}

// Close releases resources.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
