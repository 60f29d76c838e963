package migration

import (
	"context"

	"goregime/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the run-summary schema. Every step is idempotent.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRegimeRunsTable(ctx, db); err != nil {
		return errors.Wrap(errors.DatabaseError(err), "failed to create regime_runs table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(errors.DatabaseError(err), "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createRegimeRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS regime_runs (
			run_id UUID PRIMARY KEY,
			country VARCHAR(64) NOT NULL DEFAULT '',
			fingerprint CHAR(64) NOT NULL,
			current_regime VARCHAR(32) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			num_regimes INTEGER NOT NULL DEFAULT 0,
			is_valid BOOLEAN NOT NULL DEFAULT false,
			is_fallback BOOLEAN NOT NULL DEFAULT false,
			quality_level VARCHAR(16) NOT NULL DEFAULT '',
			result JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_regime_runs_country_created ON regime_runs (country, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_regime_runs_fingerprint ON regime_runs (fingerprint)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
