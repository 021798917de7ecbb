package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for malformed or disallowed input
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDuplicateKey is returned when a job with the same request id already exists
	ErrDuplicateKey = errors.New("duplicate request id")

	// ErrConflict is returned when an operation clashes with the current job state
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a job cannot be found in the store
	ErrNotFound = errors.New("translation job not found")

	// ErrInvalidTransition is returned when a status change is not allowed from the current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBrokerUnavailable is returned when a message cannot be handed to the broker
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrStoreUnavailable is returned when the record store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidPayload is returned when a queue message body cannot be decoded
	ErrInvalidPayload = errors.New("invalid message payload")
)

// ValidationError aggregates every problem found in a request
type ValidationError struct {
	Errors []error
}

// Add records one validation problem
func (v *ValidationError) Add(err error) {
	v.Errors = append(v.Errors, err)
}

// HasError reports whether any problem was recorded
func (v *ValidationError) HasError() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ErrInvalidRequest.Error()
	}
	return fmt.Sprintf("%s: %v", ErrInvalidRequest, errors.Join(v.Errors...))
}

// Is makes errors.Is(err, ErrInvalidRequest) match a ValidationError
func (v *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Messages returns the individual validation messages
func (v *ValidationError) Messages() []string {
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// UserError is implemented by translation errors that carry a message safe to show to callers
type UserError interface {
	error
	UserMessage() string
}

// ProcessingError is a translation failure with a caller-facing message
type ProcessingError struct {
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// UserMessage returns the caller-facing message
func (e *ProcessingError) UserMessage() string {
	return e.Message
}

// FailureMessage returns the message persisted for a job that exhausted its attempts.
// Raw internal errors are never exposed.
func FailureMessage(err error, attempts int) string {
	var userErr UserError
	if errors.As(err, &userErr) && userErr.UserMessage() != "" {
		return userErr.UserMessage()
	}
	return fmt.Sprintf("translation failed after %d attempts", attempts)
}
