// Package store persists the user service's denormalized profiles. Two
// implementations exist: in-memory for tests and development, PostgreSQL
// for production.
package store

import (
	"context"

	"edusync/internal/profile/models"
)

// Store is written to only by the sync handlers; every write is idempotent
// on the foreign UserID key.
type Store interface {
	// CreateIfAbsent inserts the profile unless one keyed by the same
	// UserID already exists. Reports whether a row was created.
	CreateIfAbsent(ctx context.Context, p *models.Profile) (bool, error)

	// FindByUserID returns the profile or sentinel.ErrNotFound.
	FindByUserID(ctx context.Context, userID string) (*models.Profile, error)

	// Update overwrites an existing profile; sentinel.ErrNotFound when no
	// row is keyed by p.UserID.
	Update(ctx context.Context, p *models.Profile) error

	// Delete removes the profile. Deleting a missing row is not an error;
	// deletion events are replayed.
	Delete(ctx context.Context, userID string) error
}
