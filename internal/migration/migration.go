package migration

import (
	"context"

	"chatintent/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles run registry schema migrations. The DDL sticks to
// types both postgres and sqlite accept; timestamps are unix milliseconds.
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

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createTrainingRunsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create training_runs table", err)
	}

	if err := r.createEpochMetricsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create epoch_metrics table", err)
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.DatabaseError("failed to create indexes", err)
	}

	return nil
}

func (r *MigrationRunner) createTrainingRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			corpus_hash TEXT NOT NULL,
			label_space_hash TEXT NOT NULL,
			config_hash TEXT NOT NULL,
			seed BIGINT NOT NULL,
			code_version TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			best_epoch INTEGER NOT NULL DEFAULT 0,
			accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
			f1 DOUBLE PRECISION NOT NULL DEFAULT 0,
			bundle_dir TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			finished_at BIGINT
		)
	`)
	return err
}

func (r *MigrationRunner) createEpochMetricsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS epoch_metrics (
			run_id TEXT NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
			epoch INTEGER NOT NULL,
			step INTEGER NOT NULL,
			train_loss DOUBLE PRECISION NOT NULL,
			eval_loss DOUBLE PRECISION NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			f1 DOUBLE PRECISION NOT NULL,
			learning_rate DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, epoch)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_training_runs_created_at ON training_runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_training_runs_fingerprint ON training_runs(fingerprint)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
