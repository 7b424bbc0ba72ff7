package featureflag

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"logiplatform/internal/common/database"
)

// PostgresStore reads feature flags from the feature_flags table.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed flag store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) IsEnabled(ctx context.Context, name string) (bool, error) {
	var enabled bool
	err := s.db.QueryRow(ctx, `SELECT enabled FROM feature_flags WHERE name = $1`, name).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reading feature flag %s: %w", name, err)
	}
	return enabled, nil
}

// SetEnabled upserts a flag, for admin tooling and tests.
func (s *PostgresStore) SetEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO feature_flags (name, enabled, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET enabled = $2, updated_at = now()
	`, name, enabled)
	if err != nil {
		return fmt.Errorf("setting feature flag %s: %w", name, err)
	}
	return nil
}
