package store

import (
	"errors"
	"fmt"

	"github.com/phrazzld/genflow/internal/domain"
)

// Errors returned by every store implementation.
var (
	// ErrNotFound wraps domain.ErrNotFound so callers outside the store
	// layer can match it.
	ErrNotFound = fmt.Errorf("entity %w", domain.ErrNotFound)

	// ErrDuplicate reports a unique key collision.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity reports a record the store refused to persist.
	ErrInvalidEntity = errors.New("invalid entity")

	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)
	ErrJobNotFound  = fmt.Errorf("%w: job", ErrNotFound)

	// ErrInvalidPageToken is returned when a scan is resumed from a token the
	// store did not issue.
	ErrInvalidPageToken = errors.New("invalid page token")
)

// IsNotFoundError reports whether err is any store not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError records which operation on which entity failed. It matches
// domain.ErrStorage.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match domain.ErrStorage for every StoreError.
func (e *StoreError) Is(target error) bool {
	return target == domain.ErrStorage
}

func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
