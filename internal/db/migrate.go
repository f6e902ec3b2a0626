package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/inkwell-blog/apiserver/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewMigrator reads the embedded SQL migrations and targets cfg.
func NewMigrator(cfg config.DatabaseConfig) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, PostgresURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration. An up-to-date schema is not
// an error.
func MigrateUp(cfg config.DatabaseConfig) error {
	return runMigrations(cfg, (*migrate.Migrate).Up)
}

// MigrateDown reverts every applied migration.
func MigrateDown(cfg config.DatabaseConfig) error {
	return runMigrations(cfg, (*migrate.Migrate).Down)
}

func runMigrations(cfg config.DatabaseConfig, step func(*migrate.Migrate) error) error {
	m, err := NewMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
