package audit

import (
	"context"
	"sync"
	"time"

	"edusync/pkg/platform/sentinel"
)

// MemoryStore is an in-memory audit store for tests and single-process
// runs. Retention is enforced lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord

	// now is swappable in tests to exercise retention expiry.
	now func() time.Time
}

type memoryRecord struct {
	rec       Record
	expiresAt time.Time
}

// NewMemory constructs an empty in-memory audit store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, eventID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[eventID] = memoryRecord{
		rec:       rec,
		expiresAt: s.now().Add(Retention),
	}
	return nil
}

func (s *MemoryStore) Find(_ context.Context, eventID string) (*Record, error) {
	s.mu.RLock()
	entry, ok := s.records[eventID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.records, eventID)
		s.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}
	rec := entry.rec
	return &rec, nil
}

// Len reports how many unexpired-or-not records are currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
