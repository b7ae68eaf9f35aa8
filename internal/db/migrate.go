package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS series_bundles (
		slug             TEXT PRIMARY KEY,
		resolved_json    JSONB NOT NULL,
		sample_count     INT NOT NULL,
		min_value        DOUBLE PRECISION NOT NULL,
		max_value        DOUBLE PRECISION NOT NULL,
		mean_value       DOUBLE PRECISION NOT NULL,
		gradient         DOUBLE PRECISION NOT NULL,
		upward_trend     BOOLEAN NOT NULL,
		stability_score  DOUBLE PRECISION,
		missing_points   INT NOT NULL,
		last_computed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reference_prices (
		key        TEXT PRIMARY KEY,
		price      DOUBLE PRECISION NOT NULL,
		source     TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS asset_cache (
		slug         TEXT NOT NULL,
		kind         TEXT NOT NULL,
		content      BYTEA NOT NULL,
		content_type TEXT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (slug, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bundles_gradient ON series_bundles (gradient DESC)`,
}

// Migrate applies the schema. Every statement is idempotent, so running
// it on each startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
