// Package dbmigrate runs the baseline golang-migrate migrations of the
// tile registry's Postgres instance. The vector store does not use it: its
// tables are created at runtime by CreateOrOpen. Catalog-driven additive
// columns (C8) are applied separately by the registry store's
// ensureSchema, not through migration files.
package dbmigrate

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Up applies every pending migration under migrationsPath to db.
func Up(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("dbmigrate: create driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("dbmigrate: create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("dbmigrate: up: %w", err)
	}
	return nil
}
