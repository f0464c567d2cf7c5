package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and ephemeral deployments.
// Records do not survive a supervisor restart, so reattachment is only
// possible within one process lifetime.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) EnsureSchema(_ context.Context) error { return nil }

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.records[rec.Instance] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, instance string) (Record, bool, error) {
	s.mu.RLock()
	rec, ok := s.records[instance]
	s.mu.RUnlock()
	return rec, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, instance string) error {
	s.mu.Lock()
	delete(s.records, instance)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
