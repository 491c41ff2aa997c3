package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/redact"
)

// DataResponse wraps every successful payload.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the body of every error. Error carries a redacted
// description of the cause and is only set on 5xx responses.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ResponseOption adjusts how an error response is logged.
type ResponseOption func(*responseOptions)

type responseOptions struct {
	warnOnClientError bool
}

// WithElevatedLogLevel logs a 4xx response at WARN instead of DEBUG.
func WithElevatedLogLevel() ResponseOption {
	return func(o *responseOptions) { o.warnOnClientError = true }
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithData writes {"data": data} with the given status.
func RespondWithData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, r, status, DataResponse{Data: data})
}

// RespondWithError writes {"message": message} with the given status.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger.FromContext(r.Context()).Debug("sending error response",
		"status_code", status,
		"message", message,
		"method", r.Method,
		"path", r.URL.Path)
	writeJSON(w, r, status, ErrorResponse{Message: message})
}

// RespondWithErrorAndLog is RespondWithError plus a log record of err.
// Server errors log at ERROR and echo the redacted cause to the client; 429
// logs at WARN; other client errors log at DEBUG unless elevated.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, message string, err error, opts ...ResponseOption) {
	var o responseOptions
	for _, opt := range opts {
		opt(&o)
	}

	body := ErrorResponse{Message: message}
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status_code", status),
		slog.String("user_message", message),
	}
	if err != nil {
		redacted := redact.Error(err)
		attrs = append(attrs, slog.String("error", redacted), slog.String("error_type", fmt.Sprintf("%T", err)))
		if status >= http.StatusInternalServerError {
			body.Error = redacted
		}
	}

	level := slog.LevelDebug
	switch {
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	case status == http.StatusTooManyRequests, o.warnOnClientError && status >= http.StatusBadRequest:
		level = slog.LevelWarn
	}
	logger.FromContext(r.Context()).LogAttrs(r.Context(), level, "API error response", attrs...)

	writeJSON(w, r, status, body)
}
