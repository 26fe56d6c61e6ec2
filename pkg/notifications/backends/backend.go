package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labelforge/labelforge/pkg/notifications"
)

// Backend defines the interface for notification backends
type Backend interface {
	// Name returns the backend identifier
	Name() string

	// Handle processes a notification message
	Handle(ctx context.Context, msg *notifications.NotificationMessage) error

	// SupportsBackend checks if this backend should process the message
	SupportsBackend(backend string) bool
}

// BackendError represents an error from a specific backend
type BackendError struct {
	Backend   string // Backend name (e.g., "mail", "audit")
	Operation string // Operation that failed (e.g., "send", "connect")
	Retryable bool
	Err       error
}

func (e *BackendError) Error() string {
	retryability := "permanent"
	if e.Retryable {
		retryability = "retryable"
	}
	return fmt.Sprintf("%s backend error (%s, %s): %v", e.Backend, e.Operation, retryability, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError creates a new backend error
func NewBackendError(backend, operation string, retryable bool, err error) *BackendError {
	return &BackendError{
		Backend:   backend,
		Operation: operation,
		Retryable: retryable,
		Err:       err,
	}
}

// IsRetryable reports whether err is a retryable BackendError or a
// MultiBackendError containing one.
func IsRetryable(err error) bool {
	var multi *MultiBackendError
	if errors.As(err, &multi) {
		return multi.HasRetryableErrors()
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// MultiBackendError represents errors from multiple backends
type MultiBackendError struct {
	Errors []*BackendError
}

func (e *MultiBackendError) Error() string {
	if len(e.Errors) == 0 {
		return "no backend errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("multiple backend errors: %s", strings.Join(msgs, "; "))
}

// HasRetryableErrors returns true if any of the errors are retryable
func (e *MultiBackendError) HasRetryableErrors() bool {
	for _, err := range e.Errors {
		if err.Retryable {
			return true
		}
	}
	return false
}

// FailedBackends returns the names of the backends that failed.
func (e *MultiBackendError) FailedBackends() []string {
	names := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		names = append(names, err.Backend)
	}
	return names
}
