package store

import (
	"context"
	"sync"

	"edusync/internal/profile/models"
	"edusync/pkg/platform/sentinel"
)

// MemoryStore keeps profiles in a map keyed by the foreign user id.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

// NewMemory creates an empty in-memory profile store.
func NewMemory() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]models.Profile)}
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, p *models.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; ok {
		return false, nil
	}
	s.profiles[p.UserID] = *p
	return true, nil
}

func (s *MemoryStore) FindByUserID(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *MemoryStore) Update(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	s.profiles[p.UserID] = *p
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	return nil
}

// Len reports how many profiles are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
