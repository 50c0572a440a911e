// Package migration applies the database schema on startup so a fresh
// install is usable without any external tooling.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	authdomain "github.com/dukahub/dukahub/internal/auth/domain"
	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
	"github.com/dukahub/dukahub/internal/notification"
	salesdomain "github.com/dukahub/dukahub/internal/sales/domain"
	"github.com/dukahub/dukahub/internal/scheduler"
	stockdomain "github.com/dukahub/dukahub/internal/stock/domain"
	subscriptiondomain "github.com/dukahub/dukahub/internal/subscription/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
)

// RunMigrations applies the embedded SQL migrations against postgres.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema from the models. Used for sqlite in
// development and in tests; postgres installs go through RunMigrations.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&authdomain.User{},
		&authdomain.Session{},
		&tenantdomain.Tenant{},
		&tenantdomain.Membership{},
		&catalogdomain.Category{},
		&catalogdomain.Unit{},
		&catalogdomain.Product{},
		&stockdomain.BranchStock{},
		&stockdomain.StockMovement{},
		&salesdomain.Sale{},
		&salesdomain.SaleItem{},
		&subscriptiondomain.SubscriptionTransaction{},
		&subscriptiondomain.BranchSubscription{},
		&notification.Notification{},
		&scheduler.SchedulerRun{},
		&scheduler.WarningMarker{},
	)
}
