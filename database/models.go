// Package database provides database connection management for the dealforge
// negotiation marketplace.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Schema initialization for all negotiation, profile and market tables
//   - Shared error types for repository operations
//
// Data Models:
//
//	All data models (Negotiation, BuyerProfile, StrategyPerformance, etc.)
//	are defined in the models_pkg package to avoid circular import
//	dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "dealforge/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance. It is the central connection point for all
// repositories.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// InitSchema performs auto-migration for all dealforge tables
func (d *Database) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := d.db.AutoMigrate(
		&Negotiation{},
		&NegotiationHistory{},
		&BuyerProfile{},
		&StrategyPerformance{},
		&DecisionLog{},
		&Transaction{},
		&NegotiationOverride{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Partial index for the expiry sweep: only live rows are ever swept
	d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_negotiations_live_expiry
		ON negotiations (expires_at)
		WHERE status IN ('pending', 'countered')
	`)

	fmt.Println("✅ Database schema ready")
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Type Aliases
// ============================================================================

// These type aliases let callers import a single database package for both
// the connection and the record types.

type Negotiation = models.Negotiation
type NegotiationHistory = models.NegotiationHistory
type BuyerProfile = models.BuyerProfile
type StrategyPerformance = models.StrategyPerformance
type DecisionLog = models.DecisionLog
type Transaction = models.Transaction
type NegotiationOverride = models.NegotiationOverride
type MarketRate = models.MarketRate
