package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

const backendName = "replicate"

// RunnerConfig controls how long a runner waits on a prediction.
type RunnerConfig struct {
	// Version is used when the task input does not name a model version.
	Version      string
	PollInterval time.Duration
	Timeout      time.Duration
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	return c
}

// ImageRunner runs image-gen tasks. The caller's params are merged over the
// default flux parameters and the output must be a list of image URLs.
type ImageRunner struct {
	client *Client
	cfg    RunnerConfig
	logger *slog.Logger
}

var _ backend.Runner = (*ImageRunner)(nil)

// NewImageRunner creates an image runner. An empty version falls back to
// DefaultImageVersion.
func NewImageRunner(client *Client, cfg RunnerConfig, logger *slog.Logger) *ImageRunner {
	if cfg.Version == "" {
		cfg.Version = DefaultImageVersion
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageRunner{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "replicate_image_runner")),
	}
}

// Run implements backend.Runner.
func (r *ImageRunner) Run(ctx context.Context, task *domain.Task) (backend.RawResult, error) {
	decoded, err := domain.DecodeInput(domain.TaskTypeImageGen, task.Input)
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	in := decoded.(domain.ImageGenInput)

	params := MergeParams(DefaultFluxParams(), in.Params)
	params["prompt"] = in.EffectivePrompt()

	version := in.Version
	if version == "" {
		version = r.cfg.Version
	}

	pred, err := runPrediction(ctx, r.client, r.cfg, PredictionRequest{Version: version, Input: params}, r.logger)
	if err != nil {
		return backend.RawResult{}, err
	}

	urls, err := pred.OutputURLs()
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	if len(urls) == 0 {
		return backend.RawResult{}, domain.NewBackendError(backendName, errors.New("prediction returned no output"))
	}
	return backend.URLsResult(urls...), nil
}

// VideoRunner runs video-gen tasks. The output may be a single URL or a list.
type VideoRunner struct {
	client *Client
	cfg    RunnerConfig
	logger *slog.Logger
}

var _ backend.Runner = (*VideoRunner)(nil)

// NewVideoRunner creates a video runner.
func NewVideoRunner(client *Client, cfg RunnerConfig, logger *slog.Logger) *VideoRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoRunner{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "replicate_video_runner")),
	}
}

// Run implements backend.Runner.
func (r *VideoRunner) Run(ctx context.Context, task *domain.Task) (backend.RawResult, error) {
	decoded, err := domain.DecodeInput(domain.TaskTypeVideoGen, task.Input)
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	in := decoded.(domain.VideoGenInput)

	version := in.Version
	if version == "" {
		version = r.cfg.Version
	}
	if version == "" {
		return backend.RawResult{}, domain.NewBackendError(backendName, errors.New("no model version configured for video generation"))
	}

	params := MergeParams(nil, in.Params)
	params["prompt"] = in.EffectivePrompt()

	pred, err := runPrediction(ctx, r.client, r.cfg, PredictionRequest{Version: version, Input: params}, r.logger)
	if err != nil {
		return backend.RawResult{}, err
	}

	var single string
	if err := json.Unmarshal(pred.Output, &single); err == nil && single != "" {
		return backend.URLsResult(single), nil
	}
	urls, err := pred.OutputURLs()
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	if len(urls) == 0 {
		return backend.RawResult{}, domain.NewBackendError(backendName, errors.New("prediction returned no output"))
	}
	return backend.URLsResult(urls...), nil
}

// runPrediction starts a prediction and waits for it to finish. Anything
// other than a successful terminal prediction is a BackendError.
func runPrediction(ctx context.Context, client *Client, cfg RunnerConfig, req PredictionRequest, base *slog.Logger) (*Prediction, error) {
	log := logger.FromContextOrDefault(ctx, base)

	pred, err := client.CreatePrediction(ctx, req, "")
	if err != nil {
		return nil, domain.NewBackendError(backendName, fmt.Errorf("failed to start prediction: %w", err))
	}
	log.Debug("prediction started", slog.String("prediction_id", pred.ID), slog.String("status", pred.Status))

	if !pred.IsTerminal() {
		waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		pred, err = client.Wait(waitCtx, pred.ID, cfg.PollInterval)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, domain.NewBackendError(backendName, fmt.Errorf("prediction timed out after %s", cfg.Timeout))
			}
			return nil, domain.NewBackendError(backendName, err)
		}
	}

	if pred.Status != StatusSucceeded {
		msg := pred.ErrorMessage()
		if msg == "" {
			msg = "prediction " + pred.Status
		}
		return nil, domain.NewBackendError(backendName, errors.New(msg))
	}

	log.Debug("prediction finished", slog.String("prediction_id", pred.ID))
	return pred, nil
}
