package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/septivank/water-meter-agent/internal/db"
)

// fakeRow replays fixed column values into Scan destinations
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case *string:
			*p = r.values[i].(string)
		case **string:
			*p = r.values[i].(*string)
		case **time.Time:
			*p = r.values[i].(*time.Time)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func row(current string) fakeRow {
	readingID := "r-77"
	approved := "approved"
	reviewed := time.Date(2026, 10, 3, 8, 0, 0, 0, time.UTC)
	return fakeRow{values: []any{
		uuid.New(), uuid.New(), "m-1", "CUST01", &readingID, "2026-10-02",
		current, "90", "5.5", "Accessed",
		db.OutcomeSubmitted, (*string)(nil), (*string)(nil), &approved, &reviewed,
		time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC),
	}}
}

func TestScanEntry(t *testing.T) {
	entry, err := scanEntry(row("95.5"))

	require.NoError(t, err)
	assert.Equal(t, "m-1", entry.MeterID)
	assert.Equal(t, "95.5", entry.CurrentIndex.String())
	assert.Equal(t, "5.5", entry.Consumption.String())
	require.NotNil(t, entry.ReviewStatus)
	assert.Equal(t, "approved", *entry.ReviewStatus)
	assert.Nil(t, entry.ErrorKind)
}

func TestScanEntry_InvalidNumeric(t *testing.T) {
	_, err := scanEntry(row("NaN?"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "current_index")
}

func TestScanEntry_ScanError(t *testing.T) {
	_, err := scanEntry(fakeRow{err: errors.New("conn reset")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan submission")
}

func newMockRepository(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestRecordSubmission(t *testing.T) {
	repo, mock := newMockRepository(t)
	readingID := "r-9"
	entry := &db.SubmissionEntry{
		RequestID:     uuid.New(),
		MeterID:       "m-1",
		CustomerCode:  "CUST01",
		ReadingID:     &readingID,
		ReadingDate:   "2026-10-18",
		CurrentIndex:  decimal.RequireFromString("95.5"),
		PreviousIndex: decimal.NewFromInt(90),
		Consumption:   decimal.RequireFromString("5.5"),
		AccessReason:  "Accessed",
		Outcome:       db.OutcomeSubmitted,
	}

	mock.ExpectExec("INSERT INTO reading_submissions").
		WithArgs(
			pgxmock.AnyArg(), entry.RequestID, "m-1", "CUST01", &readingID, "2026-10-18",
			"95.5", "90", "5.5", "Accessed",
			db.OutcomeSubmitted, (*string)(nil), (*string)(nil), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.RecordSubmission(context.Background(), entry))

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.False(t, entry.AttemptedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSubmission_Error(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec("INSERT INTO reading_submissions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("relation does not exist"))

	err := repo.RecordSubmission(context.Background(), &db.SubmissionEntry{MeterID: "m-1", Outcome: db.OutcomeFailed})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert submission entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReviewStatus(t *testing.T) {
	repo, mock := newMockRepository(t)
	reviewedAt := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE reading_submissions").
		WithArgs("approved", reviewedAt, "r-9", db.OutcomeSubmitted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := repo.UpdateReviewStatus(context.Background(), "r-9", "approved", reviewedAt)

	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReviewStatus_UnknownReading(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec("UPDATE reading_submissions").
		WithArgs("rejected", pgxmock.AnyArg(), "r-404", db.OutcomeSubmitted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := repo.UpdateReviewStatus(context.Background(), "r-404", "rejected", time.Now())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentSubmissions(t *testing.T) {
	repo, mock := newMockRepository(t)
	readingID := "r-77"
	failure := "network"
	rows := pgxmock.NewRows([]string{
		"id", "request_id", "meter_id", "customer_code", "reading_id", "reading_date",
		"current_index", "previous_index", "consumption", "access_reason",
		"outcome", "error_kind", "error_message", "review_status", "reviewed_at", "attempted_at",
	}).
		AddRow(uuid.New(), uuid.New(), "m-1", "CUST01", &readingID, "2026-10-02",
			"95.5", "90", "5.5", "Accessed",
			db.OutcomeSubmitted, nil, nil, nil, nil, time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC)).
		AddRow(uuid.New(), uuid.New(), "m-1", "CUST01", nil, "2026-10-02",
			"95.5", "90", "5.5", "Accessed",
			db.OutcomeFailed, &failure, nil, nil, nil, time.Date(2026, 10, 2, 9, 20, 0, 0, time.UTC))

	mock.ExpectQuery("FROM reading_submissions").WithArgs("m-1", 5).WillReturnRows(rows)

	entries, err := repo.RecentSubmissions(context.Background(), "m-1", 5)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].ReadingID)
	assert.Equal(t, "r-77", *entries[0].ReadingID)
	assert.Equal(t, "5.5", entries[0].Consumption.String())
	assert.Nil(t, entries[1].ReadingID)
	require.NotNil(t, entries[1].ErrorKind)
	assert.Equal(t, "network", *entries[1].ErrorKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentSubmissions_QueryError(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("FROM reading_submissions").WithArgs("m-1", 5).WillReturnError(errors.New("timeout"))

	_, err := repo.RecentSubmissions(context.Background(), "m-1", 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query submissions")
}
