package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when a mutation targets an order that is
	// no longer active. A second cancel or fill on a terminal order fails
	// with this error rather than silently succeeding, so racing callers
	// can detect that they lost.
	ErrInvalidState = errors.New("order is not active")

	// ErrOverFill is returned when a fill request exceeds the remaining
	// quantity. The matching loop should never request this, so callers
	// treat it as a bug signal.
	ErrOverFill = errors.New("fill quantity exceeds remaining quantity")

	// ErrLimitExceeded is returned when a subscription request would push a
	// session past the configured symbol cap.
	ErrLimitExceeded = errors.New("subscription limit exceeded")

	// ErrAuth is returned for invalid or expired authentication tokens.
	ErrAuth = errors.New("invalid token")

	// ErrSessionState is returned for operations on a session whose
	// lifecycle state does not permit them.
	ErrSessionState = errors.New("invalid session state")
)

// ValidationError reports a malformed command or order field. The connection
// stays open; the caller replies with the message and moves on.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
