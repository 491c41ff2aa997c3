// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a payload or entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrNotFound is returned when a task or job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBackend is returned when an upstream AI backend call fails.
	ErrBackend = errors.New("backend error")

	// ErrStorage is returned when the record store or object store fails.
	ErrStorage = errors.New("storage error")

	// ErrNotification is returned when pub/sub or webhook delivery fails
	// after exhausting its retries.
	ErrNotification = errors.New("notification error")

	// ErrUnsupportedTaskType is returned when no backend is registered for
	// a task type.
	ErrUnsupportedTaskType = errors.New("unsupported task type")

	// ErrInvalidTransition is returned when a status change breaks the
	// task lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStatusConflict is returned by conditional updates when the stored
	// status no longer matches the expected one.
	ErrStatusConflict = errors.New("task status changed concurrently")

	// ErrUnauthorized is returned when a request lacks valid credentials.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// ValidationError describes a single invalid field. It matches ErrValidation
// as well as the wrapped cause.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrValidation for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// BackendError carries the upstream failure message of a backend runner.
type BackendError struct {
	Backend string
	Message string
	Err     error
}

// NewBackendError wraps err as a failure of the named backend.
func NewBackendError(backend string, err error) *BackendError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &BackendError{Backend: backend, Message: msg, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrBackend.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// NotificationError reports a failed delivery channel.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s notification failed: %v", e.Channel, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrNotification.
func (e *NotificationError) Is(target error) bool {
	return target == ErrNotification
}
