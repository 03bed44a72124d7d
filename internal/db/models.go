package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Journal outcomes
const (
	OutcomeSubmitted = "submitted"
	OutcomeFailed    = "failed"
)

// SubmissionEntry is one submission attempt that reached the backend
type SubmissionEntry struct {
	ID            uuid.UUID
	RequestID     uuid.UUID
	MeterID       string
	CustomerCode  string
	ReadingID     *string
	ReadingDate   string
	CurrentIndex  decimal.Decimal
	PreviousIndex decimal.Decimal
	Consumption   decimal.Decimal
	AccessReason  string
	Outcome       string
	ErrorKind     *string
	ErrorMessage  *string
	ReviewStatus  *string
	ReviewedAt    *time.Time
	AttemptedAt   time.Time
}
