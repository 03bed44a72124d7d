package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS reading_submissions (
		id UUID PRIMARY KEY,
		request_id UUID NOT NULL,
		meter_id VARCHAR(64) NOT NULL,
		customer_code VARCHAR(64) NOT NULL,
		reading_id VARCHAR(64),
		reading_date DATE NOT NULL,
		current_index NUMERIC(18,3) NOT NULL,
		previous_index NUMERIC(18,3) NOT NULL,
		consumption NUMERIC(18,3) NOT NULL,
		access_reason VARCHAR(32) NOT NULL,
		outcome VARCHAR(16) NOT NULL,
		error_kind VARCHAR(32),
		error_message TEXT,
		review_status VARCHAR(32),
		reviewed_at TIMESTAMPTZ,
		attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_reading_submissions_meter ON reading_submissions (meter_id, attempted_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_reading_submissions_reading ON reading_submissions (reading_id);`,
}

// Migrate creates the journal schema if it does not exist yet
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrationStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
