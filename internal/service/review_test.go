package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/mq"
	"github.com/septivank/water-meter-agent/internal/service"
)

type reviewCall struct {
	readingID  string
	status     string
	reviewedAt time.Time
}

type fakeReviewJournal struct {
	calls   []reviewCall
	matched int64
	err     error
}

func (f *fakeReviewJournal) UpdateReviewStatus(_ context.Context, readingID, status string, reviewedAt time.Time) (int64, error) {
	f.calls = append(f.calls, reviewCall{readingID, status, reviewedAt})
	return f.matched, f.err
}

func newReviewProcessor(j *fakeReviewJournal) *service.ReviewProcessor {
	return service.NewReviewProcessor(j, func() time.Time { return testNow }, zap.NewNop())
}

func TestProcessReview_UpdatesJournal(t *testing.T) {
	j := &fakeReviewJournal{matched: 1}

	err := newReviewProcessor(j).ProcessMessage(context.Background(),
		[]byte(`{"readingId":42,"status":"APPROVED","reviewedAt":"2026-10-18T08:15:00Z"}`))

	require.NoError(t, err)
	require.Len(t, j.calls, 1)
	assert.Equal(t, "42", j.calls[0].readingID)
	assert.Equal(t, "approved", j.calls[0].status)
	assert.Equal(t, time.Date(2026, 10, 18, 8, 15, 0, 0, time.UTC), j.calls[0].reviewedAt.UTC())
}

func TestProcessReview_DefaultsReviewTime(t *testing.T) {
	j := &fakeReviewJournal{}

	err := newReviewProcessor(j).ProcessMessage(context.Background(), []byte(`{"readingId":"r-1","status":"rejected"}`))

	require.NoError(t, err)
	require.Len(t, j.calls, 1)
	assert.Equal(t, testNow, j.calls[0].reviewedAt)
}

func TestProcessReview_RejectsMalformedEvents(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"readingId":`,
		"missing id":     `{"status":"approved"}`,
		"pending status": `{"readingId":"r-1","status":"pending"}`,
		"bad timestamp":  `{"readingId":"r-1","status":"approved","reviewedAt":"yesterday"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			j := &fakeReviewJournal{}

			err := newReviewProcessor(j).ProcessMessage(context.Background(), []byte(body))

			assert.Error(t, err)
			assert.False(t, mq.IsRetryable(err))
			assert.Empty(t, j.calls)
		})
	}
}

func TestProcessReview_JournalFailure(t *testing.T) {
	j := &fakeReviewJournal{err: errors.New("database is down")}

	err := newReviewProcessor(j).ProcessMessage(context.Background(), []byte(`{"readingId":"r-1","status":"approved"}`))

	assert.ErrorContains(t, err, "database is down")
	assert.True(t, mq.IsRetryable(err))
}
