package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/golang-migrate/migrate/v4"
	// Registers the postgres:// scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// AutoMigrate creates or updates tables from the gorm models. It backs the sqlite
// driver and tests; postgres deployments use the versioned SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	for _, m := range models.All() {
		if err := conn.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

// MigrateSQL applies the embedded SQL migrations to the postgres database at url.
func MigrateSQL(url string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Migrate picks the strategy matching driver.
func Migrate(conn *gorm.DB, driver, url string) error {
	if driver == "sqlite" {
		return AutoMigrate(conn)
	}
	return MigrateSQL(url)
}
