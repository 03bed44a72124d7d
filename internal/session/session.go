package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/septivank/water-meter-agent/internal/apperror"
	"github.com/septivank/water-meter-agent/internal/eligibility"
	"github.com/septivank/water-meter-agent/internal/models"
	"github.com/septivank/water-meter-agent/internal/validator"
)

// State of a reading capture
type State string

const (
	StateIdle       State = "idle"
	StateReady      State = "ready"
	StateBlocked    State = "blocked"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
)

var (
	// ErrConfirmationRequired is returned when the entered index is below the previous one
	// and the user has not confirmed it yet.
	ErrConfirmationRequired = errors.New("entered index is lower than the previous index, confirmation required")
	ErrInvalidTransition    = errors.New("invalid session transition")
)

// Capture is a validated snapshot of the user's input, taken when submission starts
type Capture struct {
	Snapshot      models.CustomerSnapshot
	Index         decimal.Decimal
	PreviousIndex decimal.Decimal
	Inaccessible  bool
	PhotoPath     string
	Comments      string
	Location      *models.Location
}

// Session holds one in-progress reading capture for a resolved meter
type Session struct {
	mu sync.Mutex

	id          uuid.UUID
	validator   *validator.Validator
	state       State
	snapshot    *models.CustomerSnapshot
	eligibility eligibility.State
	lastErr     error
	abandoned   bool

	indexInput     string
	photoPath      string
	inaccessible   bool
	comments       string
	location       *models.Location
	confirmedLower bool
	awaitConfirm   bool
}

// New creates an idle session
func New(v *validator.Validator) *Session {
	return &Session{
		id:        uuid.New(),
		validator: v,
		state:     StateIdle,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Eligibility() eligibility.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eligibility
}

// LastError is the error of the last failed submission, if any
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Snapshot returns the resolved customer/meter, or nil when idle
func (s *Session) Snapshot() *models.CustomerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	snap := *s.snapshot
	return &snap
}

// AwaitingConfirmation reports whether the lower-index prompt is pending
func (s *Session) AwaitingConfirmation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitConfirm
}

// BlockedReason explains why the session cannot submit, or carries the informational message
func (s *Session) BlockedReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.eligibility.StatusValidated && s.snapshot != nil {
		return eligibility.ReasonNotVerified
	}
	return s.eligibility.BlockedReason
}

// Resolve attaches a looked-up meter and its eligibility (Idle -> Ready|Blocked)
func (s *Session) Resolve(snapshot models.CustomerSnapshot, elig eligibility.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = &snapshot
	s.clearCapture()
	s.lastErr = nil
	s.applyEligibility(elig)
}

// Reset discards the meter and all input (-> Idle)
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = nil
	s.eligibility = eligibility.State{}
	s.lastErr = nil
	s.clearCapture()
	s.state = StateIdle
}

// Abandon marks the session as discarded; late submission results are ignored
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = true
}

func (s *Session) Abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

func (s *Session) SetIndex(raw string) error {
	return s.edit(func() { s.indexInput = raw })
}

func (s *Session) SetPhoto(path string) error {
	return s.edit(func() { s.photoPath = path })
}

func (s *Session) SetInaccessible(inaccessible bool) error {
	return s.edit(func() { s.inaccessible = inaccessible })
}

func (s *Session) SetComments(comments string) error {
	return s.edit(func() { s.comments = comments })
}

func (s *Session) SetLocation(loc *models.Location) error {
	return s.edit(func() { s.location = loc })
}

// ConfirmLowerIndex acknowledges the lower-index warning for the current input
func (s *Session) ConfirmLowerIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmedLower = true
	s.awaitConfirm = false
}

// Validate checks the current input without changing state
func (s *Session) Validate() (validator.CaptureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validate()
}

// BeginSubmit moves Ready -> Submitting and returns the captured input.
// A lower index than the previous one returns ErrConfirmationRequired until confirmed.
func (s *Session) BeginSubmit() (Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil {
		return Capture{}, fmt.Errorf("%w: no meter resolved", ErrInvalidTransition)
	}
	switch s.state {
	case StateBlocked, StateSucceeded:
		return Capture{}, apperror.Conflict(s.blockedMessage())
	case StateSubmitting:
		return Capture{}, fmt.Errorf("%w: submission already in progress", ErrInvalidTransition)
	}
	if !s.eligibility.Submittable() {
		return Capture{}, apperror.Conflict(s.blockedMessage())
	}

	result, err := s.validate()
	if err != nil {
		return Capture{}, err
	}
	if result.BelowPrevious && !s.confirmedLower {
		s.awaitConfirm = true
		return Capture{}, ErrConfirmationRequired
	}

	s.state = StateSubmitting
	s.awaitConfirm = false
	return Capture{
		Snapshot:      *s.snapshot,
		Index:         result.Index,
		PreviousIndex: s.snapshot.PreviousIndex,
		Inaccessible:  s.inaccessible,
		PhotoPath:     s.photoPath,
		Comments:      s.comments,
		Location:      s.location,
	}, nil
}

// Complete records a successful submission: input is cleared and the meter is
// optimistically marked as awaiting approval. Ignored once abandoned.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned || s.state != StateSubmitting {
		return
	}

	s.clearCapture()
	s.lastErr = nil
	s.eligibility = eligibility.AwaitingApproval()
	s.state = StateSucceeded
}

// Fail records a failed submission in LastError. Input is kept; the session returns
// to Ready, or to Blocked when fresh is given and no longer submittable. Ignored once abandoned.
func (s *Session) Fail(err error, fresh *eligibility.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned || s.state != StateSubmitting {
		return
	}

	s.lastErr = err
	if fresh != nil {
		s.applyEligibility(*fresh)
		return
	}
	s.state = StateReady
}

func (s *Session) edit(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return fmt.Errorf("%w: no meter resolved", ErrInvalidTransition)
	case StateSubmitting:
		return fmt.Errorf("%w: submission in progress", ErrInvalidTransition)
	}
	fn()
	s.confirmedLower = false
	s.awaitConfirm = false
	return nil
}

func (s *Session) validate() (validator.CaptureResult, error) {
	if s.snapshot == nil {
		return validator.CaptureResult{}, fmt.Errorf("%w: no meter resolved", ErrInvalidTransition)
	}
	result := s.validator.ValidateCapture(validator.Capture{
		IndexInput:    s.indexInput,
		PhotoPath:     s.photoPath,
		Inaccessible:  s.inaccessible,
		PreviousIndex: s.snapshot.PreviousIndex,
	})
	if !result.IsValid {
		return result, apperror.Validation(result.Reason)
	}
	return result, nil
}

func (s *Session) applyEligibility(elig eligibility.State) {
	s.eligibility = elig
	if elig.Submittable() {
		s.state = StateReady
		return
	}
	s.state = StateBlocked
}

func (s *Session) blockedMessage() string {
	if !s.eligibility.StatusValidated {
		return eligibility.ReasonNotVerified
	}
	if s.eligibility.BlockedReason != "" {
		return s.eligibility.BlockedReason
	}
	return "a new reading cannot be submitted for this meter"
}

func (s *Session) clearCapture() {
	s.indexInput = ""
	s.photoPath = ""
	s.inaccessible = false
	s.comments = ""
	s.location = nil
	s.confirmedLower = false
	s.awaitConfirm = false
}
