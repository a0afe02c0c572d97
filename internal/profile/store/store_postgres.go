package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edusync/internal/profile/models"
	"edusync/pkg/platform/sentinel"
)

// PostgresStore persists profiles in the user service's own schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed profile store. The pool
// lifecycle is managed by the caller.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the profiles table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id    TEXT PRIMARY KEY,
			email      TEXT NOT NULL DEFAULT '',
			full_name  TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL DEFAULT '',
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			verified   BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure profiles schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, p *models.Profile) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_profiles (user_id, email, full_name, role, active, verified, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING`,
		p.UserID, p.Email, p.FullName, p.Role, p.Active, p.Verified, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("create profile %s: %w", p.UserID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FindByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, email, full_name, role, active, verified, updated_at
		FROM user_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.Email, &p.FullName, &p.Role, &p.Active, &p.Verified, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Profile) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_profiles
		SET email = $2, full_name = $3, role = $4, active = $5, verified = $6, updated_at = $7
		WHERE user_id = $1`,
		p.UserID, p.Email, p.FullName, p.Role, p.Active, p.Verified, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update profile %s: %w", p.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}
