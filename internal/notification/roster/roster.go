// Package roster is the notification service's denormalized list of
// reachable recipients. It is maintained exclusively by sync handlers; the
// delivery pipeline only reads it.
package roster

import (
	"context"
	"sync"

	"edusync/pkg/platform/sentinel"
)

// Recipient is one deliverable user as the notification service knows it.
type Recipient struct {
	UserID        string
	Email         string
	FullName      string
	InstitutionID string
	Active        bool
}

// Store persists recipients keyed by the foreign user id.
type Store interface {
	// Upsert inserts or overwrites the recipient. Upserts are naturally
	// idempotent on UserID.
	Upsert(ctx context.Context, r *Recipient) error

	// Find returns the recipient or sentinel.ErrNotFound.
	Find(ctx context.Context, userID string) (*Recipient, error)

	// Remove deletes the recipient; removing a missing one is a no-op.
	Remove(ctx context.Context, userID string) error

	// SetActive flips delivery eligibility; unknown users are a no-op.
	SetActive(ctx context.Context, userID string, active bool) error
}

// MemoryStore is the in-memory Store used by tests and development runs.
type MemoryStore struct {
	mu         sync.RWMutex
	recipients map[string]Recipient
}

// NewMemory creates an empty roster.
func NewMemory() *MemoryStore {
	return &MemoryStore{recipients: make(map[string]Recipient)}
}

func (s *MemoryStore) Upsert(_ context.Context, r *Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.UserID] = *r
	return nil
}

func (s *MemoryStore) Find(_ context.Context, userID string) (*Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipients[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := r
	return &out, nil
}

func (s *MemoryStore) Remove(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recipients, userID)
	return nil
}

func (s *MemoryStore) SetActive(_ context.Context, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[userID]
	if !ok {
		return nil
	}
	r.Active = active
	s.recipients[userID] = r
	return nil
}

// Len reports how many recipients are on the roster.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recipients)
}
