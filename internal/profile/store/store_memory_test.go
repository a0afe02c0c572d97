package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"edusync/internal/profile/models"
	"edusync/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func newProfile(userID string) *models.Profile {
	return &models.Profile{
		UserID:    userID,
		Email:     userID + "@example.edu",
		Role:      "student",
		Active:    true,
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *MemoryStoreSuite) TestCreateIfAbsent() {
	created, err := s.store.CreateIfAbsent(s.ctx, newProfile("u1"))
	s.Require().NoError(err)
	s.True(created)

	created, err = s.store.CreateIfAbsent(s.ctx, newProfile("u1"))
	s.Require().NoError(err)
	s.False(created, "second create for the same key is a no-op")
	s.Equal(1, s.store.Len())
}

func (s *MemoryStoreSuite) TestFindReturnsCopy() {
	s.mustCreate("u1")

	p, err := s.store.FindByUserID(s.ctx, "u1")
	s.Require().NoError(err)

	// Mutating the returned value must not leak into the store.
	p.Email = "tampered@example.edu"
	again, err := s.store.FindByUserID(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal("u1@example.edu", again.Email)
}

func (s *MemoryStoreSuite) TestUpdate() {
	s.mustCreate("u1")

	p, _ := s.store.FindByUserID(s.ctx, "u1")
	p.Role = "admin"
	s.Require().NoError(s.store.Update(s.ctx, p))

	got, _ := s.store.FindByUserID(s.ctx, "u1")
	s.Equal("admin", got.Role)
}

func (s *MemoryStoreSuite) TestUpdateMissingRow() {
	err := s.store.Update(s.ctx, newProfile("ghost"))
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *MemoryStoreSuite) TestDeleteIsIdempotent() {
	s.mustCreate("u1")
	s.Require().NoError(s.store.Delete(s.ctx, "u1"))
	s.Require().NoError(s.store.Delete(s.ctx, "u1"))

	_, err := s.store.FindByUserID(s.ctx, "u1")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *MemoryStoreSuite) mustCreate(userID string) {
	created, err := s.store.CreateIfAbsent(s.ctx, newProfile(userID))
	s.Require().NoError(err)
	s.Require().True(created)
}
