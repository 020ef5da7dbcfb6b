package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bolsa-labs/bolsa-api/internal/credentials"
	"github.com/bolsa-labs/bolsa-api/internal/database/migrations"
	"github.com/bolsa-labs/bolsa-api/internal/ledger"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddAuditEntries(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&ledger.Position{},
		&ledger.Transaction{},
		&credentials.Credential{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
