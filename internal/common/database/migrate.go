package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrateConfig holds schema migration configuration
type MigrateConfig struct {
	Dir     string `envconfig:"MIGRATIONS_DIR" default:"migrations"`
	Enabled bool   `envconfig:"MIGRATIONS_ENABLED" default:"true"`
}

// Migrate applies pending schema migrations from the given directory.
// A no-change run is not an error.
func Migrate(databaseURL string, cfg MigrateConfig, logger *slog.Logger) error {
	if !cfg.Enabled {
		logger.Info("schema migrations disabled")
		return nil
	}

	m, err := migrate.New("file://"+cfg.Dir, databaseURL)
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema up to date")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading migration version: %w", err)
	}

	logger.Info("schema migrated", "version", version, "dirty", dirty)
	return nil
}
