package migration

import (
	"context"

	"gooutlier/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the point and outlier schema. Statements are
// portable between postgres and sqlite.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.1.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createDataPointsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create data_points table")
	}

	if err := r.createOutliersTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create outliers table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

// Reset drops every table owned by the schema
func (r *MigrationRunner) Reset(ctx context.Context, db *sqlx.DB) error {
	for _, table := range []string{"outliers", "data_points"} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return errors.Wrapf(err, "failed to drop table %s", table)
		}
	}
	return nil
}

func (r *MigrationRunner) createDataPointsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS data_points (
			measure TEXT NOT NULL,
			ts BIGINT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			record_type TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (measure, ts, value, record_type)
		)
	`)
	return err
}

func (r *MigrationRunner) createOutliersTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outliers (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			ts BIGINT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			severity TEXT NOT NULL,
			score DOUBLE PRECISION,
			range_begin BIGINT NOT NULL,
			range_end BIGINT NOT NULL,
			sample_size INTEGER NOT NULL DEFAULT 0,
			document TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_data_points_measure_ts ON data_points(measure, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_outliers_source_ts ON outliers(source, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_outliers_severity ON outliers(severity)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
