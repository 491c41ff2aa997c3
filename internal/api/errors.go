package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// Messages returned to clients.
const (
	msgTaskNotFound     = "Task not found"
	msgPredictionFailed = "Prediction request failed"
	msgInternal         = "Internal server error"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrUnsupportedTaskType),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, shared.ErrEmptyBody),
		errors.Is(err, shared.ErrInvalidJSON):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, domain.ErrStatusConflict):
		return http.StatusConflict

	// Upstream errors
	case errors.Is(err, domain.ErrBackend):
		return http.StatusBadGateway

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. Validation messages are built from field names
// and fixed phrases, so they are returned as they are.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return msgInternal
	}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()

	case errors.Is(err, domain.ErrUnsupportedTaskType),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, shared.ErrEmptyBody),
		errors.Is(err, shared.ErrInvalidJSON):
		return err.Error()

	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthorized"

	case errors.Is(err, store.ErrTaskNotFound):
		return msgTaskNotFound

	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, store.ErrNotFound), errors.Is(err, domain.ErrNotFound):
		return "Not found"

	case errors.Is(err, domain.ErrStatusConflict):
		return "Task status changed concurrently"

	case errors.Is(err, domain.ErrBackend):
		return msgPredictionFailed

	default:
		return msgInternal
	}
}

// HandleAPIError writes the response for err. defaultMsg replaces the
// generic message for errors that map to a server error.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
