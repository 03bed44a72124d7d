package session_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/septivank/water-meter-agent/internal/apperror"
	"github.com/septivank/water-meter-agent/internal/eligibility"
	"github.com/septivank/water-meter-agent/internal/models"
	"github.com/septivank/water-meter-agent/internal/session"
	"github.com/septivank/water-meter-agent/internal/validator"
)

func snapshot(previous int64) models.CustomerSnapshot {
	return models.CustomerSnapshot{
		Customer:      models.Customer{ID: "c-1", Code: "CUST01"},
		Meter:         models.Meter{ID: "m-1"},
		PreviousIndex: decimal.NewFromInt(previous),
	}
}

func readySession(t *testing.T, previous int64) *session.Session {
	t.Helper()
	s := session.New(validator.NewValidator(99999999))
	s.Resolve(snapshot(previous), eligibility.State{StatusValidated: true})
	require.Equal(t, session.StateReady, s.State())
	return s
}

func TestNew_IsIdle(t *testing.T) {
	s := session.New(validator.NewValidator(99999999))

	assert.Equal(t, session.StateIdle, s.State())
	assert.Nil(t, s.Snapshot())
	assert.ErrorIs(t, s.SetIndex("10"), session.ErrInvalidTransition)

	_, err := s.BeginSubmit()
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestResolve_BlockedEligibility(t *testing.T) {
	s := session.New(validator.NewValidator(99999999))

	s.Resolve(snapshot(100), eligibility.State{
		IsBlocked:       true,
		BlockedReason:   eligibility.ReasonPending,
		StatusValidated: true,
	})

	assert.Equal(t, session.StateBlocked, s.State())
	assert.Equal(t, eligibility.ReasonPending, s.BlockedReason())

	_, err := s.BeginSubmit()
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestResolve_UnverifiedIsNotSubmittable(t *testing.T) {
	s := session.New(validator.NewValidator(99999999))

	s.Resolve(snapshot(100), eligibility.Unverified())

	assert.Equal(t, session.StateBlocked, s.State())
	assert.Equal(t, eligibility.ReasonNotVerified, s.BlockedReason())
	assert.False(t, s.Eligibility().IsBlocked)
}

func TestBeginSubmit_ValidationErrors(t *testing.T) {
	s := readySession(t, 100)

	_, err := s.BeginSubmit()
	assert.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, s.SetIndex("12a"))
	_, err = s.BeginSubmit()
	assert.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, s.SetIndex("120"))
	_, err = s.BeginSubmit()
	assert.ErrorIs(t, err, apperror.ErrValidation, "photo is required")

	assert.Equal(t, session.StateReady, s.State())
}

func TestBeginSubmit_LowerIndexNeedsConfirmation(t *testing.T) {
	s := readySession(t, 100)
	require.NoError(t, s.SetIndex("95"))
	require.NoError(t, s.SetPhoto("/tmp/meter.jpg"))

	_, err := s.BeginSubmit()
	assert.ErrorIs(t, err, session.ErrConfirmationRequired)
	assert.True(t, s.AwaitingConfirmation())
	assert.Equal(t, session.StateReady, s.State())

	s.ConfirmLowerIndex()
	capture, err := s.BeginSubmit()
	require.NoError(t, err)
	assert.Equal(t, session.StateSubmitting, s.State())
	assert.True(t, capture.Index.Equal(decimal.NewFromInt(95)))
}

func TestEdit_ResetsConfirmation(t *testing.T) {
	s := readySession(t, 100)
	require.NoError(t, s.SetIndex("95"))
	require.NoError(t, s.SetPhoto("/tmp/meter.jpg"))
	s.ConfirmLowerIndex()

	require.NoError(t, s.SetIndex("90"))

	_, err := s.BeginSubmit()
	assert.ErrorIs(t, err, session.ErrConfirmationRequired)
}

func TestBeginSubmit_InaccessibleSkipsFields(t *testing.T) {
	s := readySession(t, 80)
	require.NoError(t, s.SetInaccessible(true))

	capture, err := s.BeginSubmit()

	require.NoError(t, err)
	assert.True(t, capture.Inaccessible)
	assert.True(t, capture.Index.Equal(decimal.NewFromInt(80)))
}

func TestComplete_ClearsInputAndBlocks(t *testing.T) {
	s := readySession(t, 100)
	require.NoError(t, s.SetIndex("120"))
	require.NoError(t, s.SetPhoto("/tmp/meter.jpg"))
	_, err := s.BeginSubmit()
	require.NoError(t, err)

	s.Complete()

	assert.Equal(t, session.StateSucceeded, s.State())
	assert.True(t, s.Eligibility().IsBlocked)
	assert.Equal(t, eligibility.ReasonSubmittedAwaits, s.BlockedReason())

	_, err = s.Validate()
	assert.ErrorIs(t, err, apperror.ErrValidation, "input was cleared")

	_, err = s.BeginSubmit()
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestFail_ReturnsToReadyKeepingInput(t *testing.T) {
	s := readySession(t, 100)
	require.NoError(t, s.SetIndex("120"))
	require.NoError(t, s.SetPhoto("/tmp/meter.jpg"))
	_, err := s.BeginSubmit()
	require.NoError(t, err)

	s.Fail(apperror.Network("could not reach the server", errors.New("eof")), nil)

	assert.Equal(t, session.StateReady, s.State())
	assert.ErrorIs(t, s.LastError(), apperror.ErrNetwork)

	result, err := s.Validate()
	require.NoError(t, err)
	assert.True(t, result.Index.Equal(decimal.NewFromInt(120)))
}

func TestFail_WithFreshBlockGoesBlocked(t *testing.T) {
	s := readySession(t, 100)
	require.NoError(t, s.SetInaccessible(true))
	_, err := s.BeginSubmit()
	require.NoError(t, err)

	fresh := eligibility.State{IsBlocked: true, BlockedReason: eligibility.ReasonPending, StatusValidated: true}
	s.Fail(apperror.Conflict(eligibility.ReasonPending), &fresh)

	assert.Equal(t, session.StateBlocked, s.State())
}

func TestAbandon_DiscardsLateResult(t *testing.T) {
	s := readySession(t, 100)
	require.NoError(t, s.SetInaccessible(true))
	_, err := s.BeginSubmit()
	require.NoError(t, err)

	s.Abandon()
	s.Complete()

	assert.Equal(t, session.StateSubmitting, s.State())
	assert.True(t, s.Abandoned())
}

func TestBeginSubmit_RejectsConcurrentSubmit(t *testing.T) {
	s := readySession(t, 100)
	require.NoError(t, s.SetInaccessible(true))
	_, err := s.BeginSubmit()
	require.NoError(t, err)

	_, err = s.BeginSubmit()
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.ErrorIs(t, s.SetIndex("1"), session.ErrInvalidTransition)
}

func TestReset_ReturnsToIdle(t *testing.T) {
	s := readySession(t, 100)

	s.Reset()

	assert.Equal(t, session.StateIdle, s.State())
	assert.Nil(t, s.Snapshot())
}
