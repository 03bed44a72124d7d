package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/anomaly"
	"github.com/septivank/water-meter-agent/internal/apperror"
	"github.com/septivank/water-meter-agent/internal/backend"
	"github.com/septivank/water-meter-agent/internal/db"
	"github.com/septivank/water-meter-agent/internal/eligibility"
	"github.com/septivank/water-meter-agent/internal/logging"
	"github.com/septivank/water-meter-agent/internal/models"
	"github.com/septivank/water-meter-agent/internal/mq"
	"github.com/septivank/water-meter-agent/internal/session"
	"github.com/septivank/water-meter-agent/internal/validator"
	"github.com/septivank/water-meter-agent/tools/timeparser"
)

// ErrCancelled is returned when the caller went away before the reading was sent
var ErrCancelled = errors.New("submission cancelled before the reading was sent")

// spikeHistorySize is how many approved readings feed the spike warning
const spikeHistorySize = 10

// Phase is a named step of a submission, reported for progress display
type Phase string

const (
	PhasePreparing      Phase = "preparing data"
	PhaseUploadingPhoto Phase = "uploading photo"
	PhaseSaving         Phase = "saving reading"
	PhaseFinalizing     Phase = "finalizing"
)

// ProgressFunc receives each phase as the submission enters it
type ProgressFunc func(Phase)

// ReadingsAPI is the part of the backend the submission needs
type ReadingsAPI interface {
	ListReadings(ctx context.Context, meterID models.ID) ([]models.MeterReading, error)
	SubmitReading(ctx context.Context, p models.SubmissionPayload) (*models.MeterReading, error)
}

// Journal records submission attempts that reached the backend
type Journal interface {
	RecordSubmission(ctx context.Context, entry *db.SubmissionEntry) error
}

// EventPublisher announces accepted readings
type EventPublisher interface {
	PublishSubmittedEvent(ctx context.Context, event mq.SubmittedEvent) error
}

// NopJournal is used when no journal database is configured
type NopJournal struct{}

func (NopJournal) RecordSubmission(context.Context, *db.SubmissionEntry) error { return nil }

// NopPublisher is used when no broker is configured
type NopPublisher struct{}

func (NopPublisher) PublishSubmittedEvent(context.Context, mq.SubmittedEvent) error { return nil }

// SubmissionResult describes an accepted reading
type SubmissionResult struct {
	RequestID uuid.UUID
	Reading   *models.MeterReading
	Payload   models.SubmissionPayload
	// Warning is set when consumption looks unusual; it never prevents submission
	Warning string
}

// SubmissionService re-checks eligibility and sends a reading session to the backend
type SubmissionService struct {
	api       ReadingsAPI
	evaluator *eligibility.Evaluator
	detector  *anomaly.Detector
	journal   Journal
	publisher EventPublisher
	logger    *zap.Logger
}

// NewSubmissionService creates a new submission service; nil journal or publisher disable them
func NewSubmissionService(
	api ReadingsAPI,
	evaluator *eligibility.Evaluator,
	detector *anomaly.Detector,
	journal Journal,
	publisher EventPublisher,
	logger *zap.Logger,
) *SubmissionService {
	if journal == nil {
		journal = NopJournal{}
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &SubmissionService{
		api:       api,
		evaluator: evaluator,
		detector:  detector,
		journal:   journal,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit sends the session's reading. The meter's readings are always fetched and
// evaluated again before the mutating call; once that call starts it is not cancelled,
// and an abandoned session simply ignores its outcome.
func (s *SubmissionService) Submit(ctx context.Context, sess *session.Session, progress ProgressFunc) (*SubmissionResult, error) {
	if progress == nil {
		progress = func(Phase) {}
	}

	capture, err := sess.BeginSubmit()
	if err != nil {
		return nil, err
	}

	requestID := uuid.New()
	logger := logging.WithRequestID(s.logger, requestID.String()).With(
		zap.String("session_id", sess.ID().String()),
		zap.String("meter_id", capture.Snapshot.Meter.ID.String()),
		zap.String("customer_code", capture.Snapshot.Customer.Code),
	)

	progress(PhasePreparing)
	if ctx.Err() != nil {
		sess.Fail(ErrCancelled, nil)
		return nil, ErrCancelled
	}

	readings, err := s.api.ListReadings(ctx, capture.Snapshot.Meter.ID)
	if err != nil {
		if ctx.Err() != nil {
			sess.Fail(ErrCancelled, nil)
			return nil, ErrCancelled
		}
		err = recheckError(err)
		logger.Warn("eligibility re-check failed", zap.Error(err))
		sess.Fail(err, nil)
		return nil, err
	}

	fresh := s.evaluator.Evaluate(readings)
	if !fresh.StatusValidated {
		err := apperror.Network(eligibility.ReasonNotVerified, errors.New("reading history has an approved reading without a usable date"))
		logger.Warn("submission refused, eligibility could not be verified", zap.Error(err))
		sess.Fail(err, &fresh)
		return nil, err
	}
	if fresh.IsBlocked {
		conflict := apperror.Conflict(fresh.BlockedReason)
		logger.Info("submission refused, eligibility changed", zap.String("reason", fresh.BlockedReason))
		sess.Fail(conflict, &fresh)
		return nil, conflict
	}

	payload := BuildPayload(capture, timeparser.FormatDay(s.evaluator.Now(), s.evaluator.Location()))
	warning := s.spikeWarning(payload, capture.Inaccessible, readings)
	if warning != "" {
		logger.Warn("unusual consumption", zap.String("detail", warning))
	}

	progress(PhaseUploadingPhoto)
	if payload.PhotoPath != "" {
		if _, statErr := os.Stat(payload.PhotoPath); statErr != nil {
			err := &apperror.Error{Kind: apperror.KindValidation, Message: "the meter photo could not be read", Err: statErr}
			sess.Fail(err, nil)
			return nil, err
		}
	}

	if ctx.Err() != nil {
		sess.Fail(ErrCancelled, nil)
		return nil, ErrCancelled
	}

	progress(PhaseSaving)
	callCtx := backend.WithRequestID(context.WithoutCancel(ctx), requestID.String())
	started := time.Now()
	reading, err := s.api.SubmitReading(callCtx, payload)
	if err != nil {
		logger.Error("failed to submit reading", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		s.record(callCtx, logger, journalEntry(requestID, capture, payload, nil, err))
		sess.Fail(err, nil)
		return nil, err
	}

	progress(PhaseFinalizing)
	sess.Complete()
	s.record(callCtx, logger, journalEntry(requestID, capture, payload, reading, nil))
	s.publish(callCtx, logger, requestID, capture, payload, reading)

	logger.Info("reading submitted",
		zap.String("reading_id", reading.ID.String()),
		zap.String("consumption", payload.Consumption.String()),
		zap.String("access_reason", string(payload.AccessReason)),
		zap.Bool("abandoned", sess.Abandoned()),
	)

	return &SubmissionResult{
		RequestID: requestID,
		Reading:   reading,
		Payload:   payload,
		Warning:   warning,
	}, nil
}

// BuildPayload turns a validated capture into the outgoing submission
func BuildPayload(c session.Capture, readingDate string) models.SubmissionPayload {
	current := c.Index
	access := models.AccessReasonAccessed
	photo := c.PhotoPath
	if c.Inaccessible {
		current = c.PreviousIndex
		access = models.AccessReasonDoorClosed
		photo = ""
	}

	return models.SubmissionPayload{
		MeterID:       c.Snapshot.Meter.ID,
		ReadingDate:   readingDate,
		CurrentIndex:  current,
		PreviousIndex: c.PreviousIndex,
		Consumption:   validator.Consumption(current, c.PreviousIndex, c.Inaccessible),
		AccessReason:  access,
		Location:      c.Location,
		Comments:      c.Comments,
		PhotoPath:     photo,
	}
}

func (s *SubmissionService) spikeWarning(p models.SubmissionPayload, inaccessible bool, readings []models.MeterReading) string {
	if s.detector == nil || inaccessible {
		return ""
	}
	history := anomaly.ApprovedConsumptions(s.evaluator.NewestFirst(readings), spikeHistorySize)
	if spike, reason := s.detector.DetectSpike(p.Consumption, history); spike {
		return reason
	}
	return ""
}

func (s *SubmissionService) record(ctx context.Context, logger *zap.Logger, entry *db.SubmissionEntry) {
	if err := s.journal.RecordSubmission(ctx, entry); err != nil {
		logger.Warn("failed to record submission in journal", zap.Error(err))
	}
}

func (s *SubmissionService) publish(
	ctx context.Context,
	logger *zap.Logger,
	requestID uuid.UUID,
	c session.Capture,
	p models.SubmissionPayload,
	reading *models.MeterReading,
) {
	event := mq.SubmittedEvent{
		RequestID:     requestID.String(),
		ReadingID:     reading.ID.String(),
		MeterID:       p.MeterID.String(),
		CustomerCode:  c.Snapshot.Customer.Code,
		ReadingDate:   p.ReadingDate,
		CurrentIndex:  p.CurrentIndex.String(),
		PreviousIndex: p.PreviousIndex.String(),
		Consumption:   p.Consumption.String(),
		AccessReason:  string(p.AccessReason),
		Status:        string(reading.Status),
		SubmittedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.publisher.PublishSubmittedEvent(ctx, event); err != nil {
		logger.Warn("failed to publish submitted event", zap.Error(err))
	}
}

func journalEntry(
	requestID uuid.UUID,
	c session.Capture,
	p models.SubmissionPayload,
	reading *models.MeterReading,
	submitErr error,
) *db.SubmissionEntry {
	entry := &db.SubmissionEntry{
		RequestID:     requestID,
		MeterID:       p.MeterID.String(),
		CustomerCode:  c.Snapshot.Customer.Code,
		ReadingDate:   p.ReadingDate,
		CurrentIndex:  p.CurrentIndex,
		PreviousIndex: p.PreviousIndex,
		Consumption:   p.Consumption,
		AccessReason:  string(p.AccessReason),
		Outcome:       db.OutcomeSubmitted,
	}
	if reading != nil && reading.ID != "" {
		id := reading.ID.String()
		entry.ReadingID = &id
	}
	if submitErr != nil {
		entry.Outcome = db.OutcomeFailed
		kind := string(apperror.KindOf(submitErr))
		if kind == "" {
			kind = "unknown"
		}
		msg := apperror.UserMessage(submitErr)
		entry.ErrorKind = &kind
		entry.ErrorMessage = &msg
	}
	return entry
}

// recheckError keeps taxonomy errors from the reading fetch and treats anything else as a network failure
func recheckError(err error) error {
	if apperror.KindOf(err) != "" {
		return err
	}
	return apperror.Network("could not verify the meter status", fmt.Errorf("re-check readings: %w", err))
}
