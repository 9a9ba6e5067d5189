package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus describes the schema version reported by MigrateStatus.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Applied bool // false when no migration has ever run
}

// MigrateUp applies every pending migration. It reports whether anything
// changed.
func MigrateUp(databaseURL string) (bool, error) {
	m, err := newMigrate(databaseURL)
	if err != nil {
		return false, err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("store: migrate up: %w", err)
	}
	return true, nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(databaseURL string, steps int) error {
	if steps < 1 {
		return fmt.Errorf("store: migrate down: steps must be positive, got %d", steps)
	}
	m, err := newMigrate(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate down: %w", err)
	}
	return nil
}

// MigrateStatus reports the current schema version.
func MigrateStatus(databaseURL string) (MigrationStatus, error) {
	m, err := newMigrate(databaseURL)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("store: migrate version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty, Applied: true}, nil
}

// newMigrate binds golang-migrate to the embedded SQL files over a dedicated
// connection pool, which m.Close releases.
func newMigrate(databaseURL string) (*migrate.Migrate, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: migrate open: %w", err)
	}
	driver, err := postgres.WithInstance(pool, &postgres.Config{})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("store: migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("store: migrate init: %w", err)
	}
	return m, nil
}
