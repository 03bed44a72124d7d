package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/models"
	"github.com/septivank/water-meter-agent/internal/mq"
	"github.com/septivank/water-meter-agent/tools/timeparser"
)

// ReviewEvent is published by the backend when a reading is approved or rejected
type ReviewEvent struct {
	ReadingID  models.ID `json:"readingId"`
	Status     string    `json:"status"`
	ReviewedAt string    `json:"reviewedAt"`
}

// ReviewJournal stores review outcomes against journal entries
type ReviewJournal interface {
	UpdateReviewStatus(ctx context.Context, readingID string, status string, reviewedAt time.Time) (int64, error)
}

// ReviewProcessor applies review events to the submission journal
type ReviewProcessor struct {
	journal ReviewJournal
	now     func() time.Time
	logger  *zap.Logger
}

// NewReviewProcessor creates a new review processor
func NewReviewProcessor(journal ReviewJournal, now func() time.Time, logger *zap.Logger) *ReviewProcessor {
	if now == nil {
		now = time.Now
	}
	return &ReviewProcessor{
		journal: journal,
		now:     now,
		logger:  logger,
	}
}

// ProcessMessage handles one review event. Malformed events return an error so the
// consumer dead-letters them, journal failures are retryable, and events for readings
// this agent never sent are acknowledged.
func (p *ReviewProcessor) ProcessMessage(ctx context.Context, body []byte) error {
	var event ReviewEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal review event: %w", err)
	}

	readingID := strings.TrimSpace(event.ReadingID.String())
	if readingID == "" {
		return errors.New("review event without readingId")
	}

	status := models.ParseReadingStatus(event.Status)
	if status != models.StatusApproved && status != models.StatusRejected {
		return fmt.Errorf("unsupported review status %q", event.Status)
	}

	reviewedAt := p.now()
	if event.ReviewedAt != "" {
		t, err := timeparser.ParseReadingDate(event.ReviewedAt, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid reviewedAt: %w", err)
		}
		reviewedAt = t
	}

	logger := p.logger.With(zap.String("reading_id", readingID), zap.String("status", string(status)))

	updated, err := p.journal.UpdateReviewStatus(ctx, readingID, string(status), reviewedAt)
	if err != nil {
		return mq.Retryable(fmt.Errorf("failed to update journal: %w", err))
	}
	if updated == 0 {
		logger.Debug("review event for a reading not in the journal")
		return nil
	}

	logger.Info("reading reviewed", zap.Time("reviewed_at", reviewedAt))
	return nil
}
