package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/replicate"
	"github.com/phrazzld/genflow/internal/store"
	"golang.org/x/sync/errgroup"
)

// Polling defaults.
const (
	DefaultInterval       = 3 * time.Second
	DefaultTimeout        = 120 * time.Second
	DefaultPersistTimeout = 2 * time.Minute
)

// artifactTaskType labels persisted proxy artifacts.
const artifactTaskType = string(domain.TaskTypeImageGen)

// PredictionGetter fetches the current state of a prediction.
type PredictionGetter interface {
	GetPrediction(ctx context.Context, id string, requestID string) (*replicate.Prediction, error)
}

// URLPersister copies one remote artifact into durable storage.
type URLPersister interface {
	PersistURL(ctx context.Context, owner, taskType, source string) (string, error)
}

// PollerConfig controls the polling loop. Zero values use the defaults.
// Timeout bounds polling only; copying the output of a prediction that
// succeeded gets its own PersistTimeout.
type PollerConfig struct {
	Interval       time.Duration
	Timeout        time.Duration
	PersistTimeout time.Duration
}

// Poller follows a prediction until it settles and mirrors its progress
// into the job store.
type Poller struct {
	client    PredictionGetter
	jobs      store.JobStore
	persister URLPersister
	cfg       PollerConfig
	logger    *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(client PredictionGetter, jobs store.JobStore, persister URLPersister, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:    client,
		jobs:      jobs,
		persister: persister,
		cfg:       cfg,
		logger:    logger.With("component", "prediction_poller"),
	}
}

// Poll checks the prediction right away and then every interval until it
// fails, succeeds or the timeout elapses. The job record is updated only
// when the status differs from lastStatus. On success the output URLs are
// persisted and recorded as the job's images.
//
// Reaching the timeout is not an error: the record keeps the last status
// that was seen.
func (p *Poller) Poll(ctx context.Context, jobID string, lastStatus domain.TaskStatus) error {
	log := p.logger.With("job_id", jobID)

	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		pred, err := p.client.GetPrediction(pollCtx, jobID, "")
		if err != nil {
			if pollCtx.Err() == nil {
				log.Warn("failed to fetch prediction, retrying", "error", err)
			}
		} else if status := pred.TaskStatus(); status != lastStatus {
			log.Info("prediction status changed", "from", lastStatus, "to", status)
			lastStatus = status

			done, err := p.settle(ctx, jobID, pred, log)
			if done || err != nil {
				return err
			}
		}

		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			log.Warn("stopped polling before the prediction settled",
				"last_status", lastStatus,
				"timeout", p.cfg.Timeout)
			return nil
		case <-ticker.C:
		}
	}
}

// settle records a status change. It reports done once the prediction is
// terminal. Writes run on ctx, not on the polling deadline.
func (p *Poller) settle(ctx context.Context, jobID string, pred *replicate.Prediction, log *slog.Logger) (bool, error) {
	status := pred.TaskStatus()

	var errMsg string
	if status == domain.TaskStatusFailed {
		errMsg = pred.ErrorMessage()
	}
	if err := p.jobs.UpdateJobStatus(ctx, jobID, status, pred.Output, errMsg); err != nil {
		return true, fmt.Errorf("failed to update job %s status: %w", jobID, err)
	}

	switch status {
	case domain.TaskStatusSucceeded:
		persistCtx, cancel := context.WithTimeout(ctx, p.cfg.PersistTimeout)
		defer cancel()
		return true, p.persistImages(persistCtx, jobID, pred, log)
	case domain.TaskStatusFailed:
		return true, nil
	}
	return false, nil
}

// persistImages copies every output URL concurrently. Items that fail are
// dropped; the rest keep their order.
func (p *Poller) persistImages(ctx context.Context, jobID string, pred *replicate.Prediction, log *slog.Logger) error {
	urls, err := pred.OutputURLs()
	if err != nil {
		log.Warn("prediction output is not a list of URLs, nothing to persist", "error", err)
		return nil
	}

	persisted := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range urls {
		g.Go(func() error {
			u, err := p.persister.PersistURL(gctx, jobID, artifactTaskType, source)
			if err != nil {
				log.Error("failed to persist prediction output", "source", source, "error", err)
				return nil
			}
			persisted[i] = u
			return nil
		})
	}
	_ = g.Wait()

	images := make([]string, 0, len(persisted))
	for _, u := range persisted {
		if u != "" {
			images = append(images, u)
		}
	}
	if len(images) == 0 {
		if len(urls) > 0 {
			return errors.New("no prediction output could be persisted")
		}
		return nil
	}

	if err := p.jobs.UpdateJobImages(ctx, jobID, images); err != nil {
		return fmt.Errorf("failed to record images of job %s: %w", jobID, err)
	}
	log.Info("persisted prediction output", "count", len(images))
	return nil
}
