package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const fileScheme = "file://"

var (
	ErrEmptyMigrationsPath = errors.New("migrations path cannot be empty")
	ErrEmptyDatabaseURL    = errors.New("database URL cannot be empty")
)

// RunMigrations brings the schema for plans, bank accounts, reconciliation sessions and the
// outbox up to the latest version. A dirty schema is reported, not forced.
func RunMigrations(logger *slog.Logger, databaseURL string, migrationsPath string) error {
	if databaseURL == "" {
		return ErrEmptyDatabaseURL
	}
	sourceURL, err := migrationSourceURL(migrationsPath)
	if err != nil {
		return err
	}

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrator", "source_error", sourceErr, "db_error", dbErr)
		}
	}()

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations from %s: %w", sourceURL, upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	logger.Info("PostgreSQL schema ready", "version", version, "changed", upErr == nil)
	return nil
}

// migrationSourceURL accepts a plain directory or a file:// URL and returns an absolute file:// URL
func migrationSourceURL(path string) (string, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), fileScheme)
	if path == "" {
		return "", ErrEmptyMigrationsPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path %q: %w", path, err)
	}
	return fileScheme + filepath.ToSlash(abs), nil
}
