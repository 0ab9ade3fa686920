// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCriteria      = errors.New("invalid broadcast criteria")
	ErrDirectoryUnavailable = errors.New("venue directory unavailable")
	ErrBroadcastNotFound    = errors.New("broadcast request not found")
	ErrCallbackTooEarly     = errors.New("delivery record not sent yet")
	ErrInvalidTransition    = errors.New("invalid delivery status transition")
	ErrLedgerWrite          = errors.New("delivery ledger write failed")
)

// ValidationError reports the first offending field of a rejected request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidCriteria, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCriteria
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrBroadcastMissing carries the id that was looked up.
type ErrBroadcastMissing struct {
	RequestID string
}

func (e *ErrBroadcastMissing) Error() string {
	return fmt.Sprintf("broadcast request %s not found", e.RequestID)
}

func (e *ErrBroadcastMissing) Unwrap() error {
	return ErrBroadcastNotFound
}

func NewBroadcastNotFound(id string) error {
	return &ErrBroadcastMissing{RequestID: id}
}
