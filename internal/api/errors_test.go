package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"wrapped job not found", fmt.Errorf("lookup: %w", store.ErrJobNotFound), http.StatusNotFound},
		{"validation error", domain.NewValidationError("input.prompt", "is required", domain.ErrValidation), http.StatusBadRequest},
		{"invalid id", domain.NewValidationError("id", "has invalid format", domain.ErrInvalidID), http.StatusBadRequest},
		{"unsupported task type", fmt.Errorf("%w: %q", domain.ErrUnsupportedTaskType, "x"), http.StatusBadRequest},
		{"invalid transition", domain.ValidateTransition(domain.TaskStatusFailed, domain.TaskStatusProcessing), http.StatusBadRequest},
		{"invalid status", domain.ValidateTransition(domain.TaskStatusStarting, "paused"), http.StatusBadRequest},
		{"empty body", shared.ErrEmptyBody, http.StatusBadRequest},
		{"status conflict", domain.ErrStatusConflict, http.StatusConflict},
		{"backend error", domain.NewBackendError("replicate", errors.New("503")), http.StatusBadGateway},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"storage error", store.NewStoreError("task", "put", "write failed", errors.New("disk full")), http.StatusInternalServerError},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	t.Run("validation errors keep their text", func(t *testing.T) {
		err := domain.NewValidationError("input.prompt", "is required", domain.ErrValidation)
		assert.Equal(t, "input.prompt is required", GetSafeErrorMessage(err))
	})

	t.Run("not found names the entity", func(t *testing.T) {
		assert.Equal(t, "Task not found", GetSafeErrorMessage(store.ErrTaskNotFound))
		assert.Equal(t, "Job not found", GetSafeErrorMessage(store.ErrJobNotFound))
	})

	t.Run("backend errors hide the upstream detail", func(t *testing.T) {
		err := domain.NewBackendError("replicate", errors.New("token r8_secret rejected"))
		assert.Equal(t, "Prediction request failed", GetSafeErrorMessage(err))
	})

	t.Run("internal errors are generic", func(t *testing.T) {
		err := store.NewStoreError("task", "put", "write failed", errors.New("postgres://user:pw@db/x refused"))
		assert.Equal(t, "Internal server error", GetSafeErrorMessage(err))
		assert.Equal(t, "Internal server error", GetSafeErrorMessage(nil))
	})
}
