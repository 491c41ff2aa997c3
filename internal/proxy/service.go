// Package proxy is a thin front for the Replicate predictions API. Starting
// a prediction records a job and follows it in the background until its
// output has been copied into durable storage.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/platform/replicate"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/phrazzld/genflow/internal/worker"
)

const backendName = "replicate"

// PredictionAPI is the subset of the Replicate client the service uses.
type PredictionAPI interface {
	PredictionGetter
	CreatePrediction(ctx context.Context, req replicate.PredictionRequest, requestID string) (*replicate.Prediction, error)
}

// StartRequest starts a prediction. Input is merged over the default flux
// parameters.
type StartRequest struct {
	Version   string         `json:"version,omitempty"`
	Input     map[string]any `json:"input"`
	RequestID string         `json:"-"`
}

// Service starts predictions and reports their status.
type Service struct {
	api       PredictionAPI
	jobs      store.JobStore
	poller    *Poller
	submitter worker.Submitter
	version   string
	logger    *slog.Logger
}

// NewService creates a Service. An empty defaultVersion uses
// replicate.DefaultImageVersion.
func NewService(
	api PredictionAPI,
	jobs store.JobStore,
	poller *Poller,
	submitter worker.Submitter,
	defaultVersion string,
	logger *slog.Logger,
) *Service {
	if defaultVersion == "" {
		defaultVersion = replicate.DefaultImageVersion
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:       api,
		jobs:      jobs,
		poller:    poller,
		submitter: submitter,
		version:   defaultVersion,
		logger:    logger.With("component", "proxy_service"),
	}
}

// Start creates a prediction, records it as a job and schedules polling.
// Failing to record the job is logged but does not fail the call; the
// prediction has already been created upstream.
func (s *Service) Start(ctx context.Context, req StartRequest) (*replicate.Prediction, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	version := req.Version
	if version == "" {
		version = s.version
	}
	input := replicate.MergeParams(replicate.DefaultFluxParams(), req.Input)

	pred, err := s.api.CreatePrediction(ctx, replicate.PredictionRequest{Version: version, Input: input}, req.RequestID)
	if err != nil {
		return nil, domain.NewBackendError(backendName, err)
	}
	log = log.With("job_id", pred.ID)
	log.Info("prediction started", "status", pred.Status)

	rawInput, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction input: %w", err)
	}
	job := domain.NewJobRecord(pred.ID, pred.TaskStatus(), rawInput, pred.Output)
	if err := s.jobs.PutJob(ctx, job); err != nil {
		log.Error("failed to record job", "error", err)
		return pred, nil
	}

	if err := s.OnJobInserted(ctx, job); err != nil {
		log.Error("failed to schedule polling", "error", err)
	}
	return pred, nil
}

// Status fetches the prediction and records what it reports.
func (s *Service) Status(ctx context.Context, predictionID, requestID string) (*replicate.Prediction, error) {
	pred, err := s.api.GetPrediction(ctx, predictionID, requestID)
	if err != nil {
		return nil, domain.NewBackendError(backendName, err)
	}
	if err := s.record(ctx, pred); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to record job",
			"job_id", predictionID,
			"error", err)
	}
	return pred, nil
}

func (s *Service) record(ctx context.Context, pred *replicate.Prediction) error {
	status := pred.TaskStatus()
	var errMsg string
	if status == domain.TaskStatusFailed {
		errMsg = pred.ErrorMessage()
	}

	err := s.jobs.UpdateJobStatus(ctx, pred.ID, status, pred.Output, errMsg)
	if !errors.Is(err, store.ErrJobNotFound) {
		return err
	}

	job := domain.NewJobRecord(pred.ID, status, pred.Input, pred.Output)
	job.Error = errMsg
	return s.jobs.PutJob(ctx, job)
}

// OnJobInserted schedules polling for a job that is still starting and has
// no persisted images yet. Other jobs are left alone.
func (s *Service) OnJobInserted(ctx context.Context, job *domain.JobRecord) error {
	if job.HasImages() || job.Status != domain.TaskStatusStarting {
		return nil
	}

	id, status := job.ID, job.Status
	return s.submitter.Submit(ctx, worker.NewJob("poll:"+id, "prediction_poll", func(ctx context.Context) error {
		return s.poller.Poll(ctx, id, status)
	}))
}
