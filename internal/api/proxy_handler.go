package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/platform/replicate"
	"github.com/phrazzld/genflow/internal/proxy"
)

// PredictionService starts and inspects upstream predictions.
type PredictionService interface {
	Start(ctx context.Context, req proxy.StartRequest) (*replicate.Prediction, error)
	Status(ctx context.Context, predictionID, requestID string) (*replicate.Prediction, error)
}

// StartPredictionRequest is the body of POST /api/proxy/predictions.
type StartPredictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input" validate:"required"`
}

// ProxyHandler serves the prediction proxy endpoints.
type ProxyHandler struct {
	service PredictionService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(service PredictionService, logger *slog.Logger) *ProxyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyHandler{
		service: service,
		logger:  logger.With(slog.String("component", "proxy_handler")),
	}
}

// StartPrediction handles POST /api/proxy/predictions.
func (h *ProxyHandler) StartPrediction(w http.ResponseWriter, r *http.Request) {
	var req StartPredictionRequest
	if err := shared.DecodeJSON(r, &req); errors.Is(err, shared.ErrEmptyBody) {
		shared.RespondWithError(w, r, http.StatusBadRequest, msgBodyRequired)
		return
	} else if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, domain.ErrInputNotObject.Error(), err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, domain.ErrInputNotObject.Error(), err)
		return
	}

	pred, err := h.service.Start(r.Context(), proxy.StartRequest{
		Version:   req.Version,
		Input:     req.Input,
		RequestID: shared.GetRequestID(r.Context()),
	})
	if err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("prediction started",
		slog.String("job_id", pred.ID))
	shared.RespondWithData(w, r, http.StatusCreated, pred)
}

// GetPrediction handles GET /api/proxy/predictions/{id}.
func (h *ProxyHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Prediction ID is required")
		return
	}

	pred, err := h.service.Status(r.Context(), id, shared.GetRequestID(r.Context()))
	if err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}
	shared.RespondWithData(w, r, http.StatusOK, pred)
}
