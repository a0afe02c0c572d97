//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"edusync/internal/profile/models"
	"edusync/internal/profile/store"
	"edusync/pkg/platform/sentinel"
	"edusync/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "user_profiles"))
}

func newTestProfile(userID string) *models.Profile {
	return &models.Profile{
		UserID:    userID,
		Email:     userID + "@example.edu",
		FullName:  "Ada B",
		Role:      "student",
		Active:    true,
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *PostgresStoreSuite) TestCreateFindUpdateDelete() {
	created, err := s.store.CreateIfAbsent(s.ctx, newTestProfile("u1"))
	s.Require().NoError(err)
	s.True(created)

	p, err := s.store.FindByUserID(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal("u1@example.edu", p.Email)

	p.Role = "admin"
	s.Require().NoError(s.store.Update(s.ctx, p))
	p, err = s.store.FindByUserID(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal("admin", p.Role)

	s.Require().NoError(s.store.Delete(s.ctx, "u1"))
	_, err = s.store.FindByUserID(s.ctx, "u1")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestCreateIfAbsentIsIdempotentOnKey() {
	created, err := s.store.CreateIfAbsent(s.ctx, newTestProfile("u1"))
	s.Require().NoError(err)
	s.True(created)

	created, err = s.store.CreateIfAbsent(s.ctx, newTestProfile("u1"))
	s.Require().NoError(err)
	s.False(created)
}

// TestConcurrentCreates verifies that racing creates for the same foreign
// key result in exactly one row.
func (s *PostgresStoreSuite) TestConcurrentCreates() {
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.store.CreateIfAbsent(s.ctx, newTestProfile("u-race"))
			if err == nil && created {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should win")
	p, err := s.store.FindByUserID(s.ctx, "u-race")
	s.Require().NoError(err)
	s.Equal("u-race@example.edu", p.Email)
}

func (s *PostgresStoreSuite) TestUpdateMissingRow() {
	err := s.store.Update(s.ctx, newTestProfile("ghost"))
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestDeleteMissingRowIsNoOp() {
	s.NoError(s.store.Delete(s.ctx, "ghost"))
}
