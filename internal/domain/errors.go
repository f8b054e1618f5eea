package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks a missing or malformed request field.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown record id or (bank, account) pair.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable marks an unreachable or rate-limited backing store.
	// Callers may retry with backoff.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPartialFailure marks a mutation that committed some writes and then
	// failed, leaving the ledger and registry out of step.
	ErrPartialFailure = errors.New("partial failure")
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PartialFailureError is returned when a mutation fails after at least one
// write has been committed. Committed lists the writes that went through.
type PartialFailureError struct {
	Operation string
	Committed []string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: ledger and registry are inconsistent after [%s]: %v",
		e.Operation, strings.Join(e.Committed, ", "), e.Err)
}

// Is lets errors.Is(err, ErrPartialFailure) match.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// NotFoundf wraps ErrNotFound with a formatted description.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Unavailable wraps err so that errors.Is(err, ErrUpstreamUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
}
