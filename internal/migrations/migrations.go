// Package migrations applies the physical schema (the event and consumer
// tables) via golang-migrate. It is a pluggable collaborator — nothing in
// internal/store imports it; the schema is assumed to already exist when a
// store.EventStore is constructed.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Run applies all pending migrations against db. If apply is false it only
// logs the current/pending version and returns without modifying the
// schema — useful for a --dry-run style startup check.
func Run(db *sql.DB, apply bool) error {
	source, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("migrations: build source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrations: build driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrations: build migrator: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("migrations: read version: %w", err)
	}

	if dirty {
		slog.Warn("migrations: dirty state, forcing to last known version", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("migrations: force version %d: %w", version, err)
		}
	}

	if !apply {
		slog.Info("migrations: skipping apply", "current_version", version, "dirty", dirty)
		return nil
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			slog.Info("migrations: schema already up to date", "version", version)
			return nil
		}
		return fmt.Errorf("migrations: up: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("migrations: read updated version: %w", err)
	}
	slog.Info("migrations: applied", "from_version", version, "to_version", newVersion)
	return nil
}
