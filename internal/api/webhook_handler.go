package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/redact"
)

// maxLoggedBody bounds how much of an inbound webhook body is logged.
const maxLoggedBody = 64 << 10

// WebhookHandler acknowledges inbound webhook calls. It only logs them.
type WebhookHandler struct {
	logger *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{logger: logger.With(slog.String("component", "webhook_handler"))}
}

// Receive handles POST /api/webhook.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
	if err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		if name == "Authorization" || name == "Cookie" {
			headers[name] = redact.RedactionPlaceholder
			continue
		}
		headers[name] = r.Header.Get(name)
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("webhook received",
		slog.String("method", r.Method),
		slog.Any("headers", headers),
		slog.String("query", r.URL.RawQuery),
		slog.String("body", string(body)))

	shared.RespondWithData(w, r, http.StatusOK, nil)
}
