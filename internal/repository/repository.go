package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/septivank/water-meter-agent/internal/db"
)

// DBTX is the part of pgxpool.Pool the journal uses
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository is the submission journal backed by PostgreSQL
type Repository struct {
	pool DBTX
}

// NewRepository creates a new repository
func NewRepository(pool DBTX) *Repository {
	return &Repository{pool: pool}
}

// RecordSubmission inserts a journal entry, assigning its id and attempt time when unset
func (r *Repository) RecordSubmission(ctx context.Context, entry *db.SubmissionEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.AttemptedAt.IsZero() {
		entry.AttemptedAt = time.Now()
	}

	query := `
		INSERT INTO reading_submissions (
			id, request_id, meter_id, customer_code, reading_id, reading_date,
			current_index, previous_index, consumption, access_reason,
			outcome, error_kind, error_message, attempted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.MeterID,
		entry.CustomerCode,
		entry.ReadingID,
		entry.ReadingDate,
		entry.CurrentIndex.String(),
		entry.PreviousIndex.String(),
		entry.Consumption.String(),
		entry.AccessReason,
		entry.Outcome,
		entry.ErrorKind,
		entry.ErrorMessage,
		entry.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission entry: %w", err)
	}

	return nil
}

// UpdateReviewStatus stores the backend review outcome for a submitted reading.
// It returns the number of journal entries that matched readingID.
func (r *Repository) UpdateReviewStatus(ctx context.Context, readingID string, status string, reviewedAt time.Time) (int64, error) {
	query := `
		UPDATE reading_submissions
		SET review_status = $1, reviewed_at = $2
		WHERE reading_id = $3 AND outcome = $4
	`

	tag, err := r.pool.Exec(ctx, query, status, reviewedAt, readingID, db.OutcomeSubmitted)
	if err != nil {
		return 0, fmt.Errorf("failed to update review status: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RecentSubmissions lists the latest journal entries for a meter, newest first
func (r *Repository) RecentSubmissions(ctx context.Context, meterID string, limit int) ([]db.SubmissionEntry, error) {
	query := `
		SELECT id, request_id, meter_id, customer_code, reading_id, reading_date::text,
			current_index::text, previous_index::text, consumption::text, access_reason,
			outcome, error_kind, error_message, review_status, reviewed_at, attempted_at
		FROM reading_submissions
		WHERE meter_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, meterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var entries []db.SubmissionEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

func scanEntry(row pgx.Row) (*db.SubmissionEntry, error) {
	var (
		entry                       db.SubmissionEntry
		current, previous, consumed string
	)
	err := row.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.MeterID,
		&entry.CustomerCode,
		&entry.ReadingID,
		&entry.ReadingDate,
		&current,
		&previous,
		&consumed,
		&entry.AccessReason,
		&entry.Outcome,
		&entry.ErrorKind,
		&entry.ErrorMessage,
		&entry.ReviewStatus,
		&entry.ReviewedAt,
		&entry.AttemptedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	if entry.CurrentIndex, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("invalid current_index %q: %w", current, err)
	}
	if entry.PreviousIndex, err = decimal.NewFromString(previous); err != nil {
		return nil, fmt.Errorf("invalid previous_index %q: %w", previous, err)
	}
	if entry.Consumption, err = decimal.NewFromString(consumed); err != nil {
		return nil, fmt.Errorf("invalid consumption %q: %w", consumed, err)
	}

	return &entry, nil
}
