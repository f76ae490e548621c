package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// ErrDirtySchema means a previous run stopped halfway through a migration and
// the schema needs a manual `migrate force` before the service can start.
var ErrDirtySchema = errors.New("schema is dirty")

func schemaSource() (source.Driver, error) {
	dir, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, err
	}
	return iofs.New(dir, ".")
}

// RunMigrations brings the tenants, subscriptions and subscription_logs tables
// up to the newest embedded version. The shared *sql.DB stays open.
func RunMigrations(db *sql.DB, log *zap.Logger) error {
	if db == nil {
		return errors.New("migration: nil database handle")
	}
	if log == nil {
		log = zap.NewNop()
	}

	src, err := schemaSource()
	if err != nil {
		return fmt.Errorf("migration: load embedded schema: %w", err)
	}
	target, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration: postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return fmt.Errorf("migration: read version: %w", err)
	case dirty:
		return fmt.Errorf("migration: version %d: %w", before, ErrDirtySchema)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up from version %d: %w", before, err)
	}

	after, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("migration: read version: %w", err)
	}
	if after == before {
		log.Info("schema up to date", zap.Uint("schema_version", after))
		return nil
	}
	log.Info("schema migrated", zap.Uint("from_version", before), zap.Uint("schema_version", after))
	return nil
}
