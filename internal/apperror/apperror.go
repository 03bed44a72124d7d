package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a recoverable workflow failure
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindNetwork    Kind = "network"
	KindAuth       Kind = "auth"
)

// Error is a workflow failure carrying a human-readable message.
// Err holds the underlying cause for logs and is never shown to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is matching by kind
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrAuth       = &Error{Kind: KindAuth}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when the target is a bare sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Network(msg string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: msg, Err: err}
}

func Auth(msg string, err error) *Error {
	return &Error{Kind: KindAuth, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" if none
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// UserMessage returns the text safe to show to an end user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	switch KindOf(err) {
	case KindValidation:
		return "the entered data is not valid"
	case KindConflict:
		return "the meter status changed, please check again"
	case KindNotFound:
		return "the requested record was not found"
	case KindNetwork:
		return "the server could not be reached, please try again"
	case KindAuth:
		return "your session has expired, please log in again"
	}
	return "an unexpected error occurred"
}
