package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds configuration for the runner
type Config struct {
	// WorkerCount determines how many jobs run concurrently
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue
	QueueSize int

	// StaleAge is how long work may stay in progress before the stale hook
	// is asked to deal with it
	StaleAge time.Duration

	// StaleCheckInterval defines how often the stale hook runs
	// If zero, defaults to 1 minute
	StaleCheckInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		WorkerCount:        4,
		QueueSize:          100,
		StaleAge:           15 * time.Minute,
		StaleCheckInterval: time.Minute,
	}
}

// RecoverFunc is run once at start, after the workers are up, to resubmit
// work left over from a previous process.
type RecoverFunc func(ctx context.Context) error

// StaleFunc is run periodically to settle work that has been in progress
// for longer than olderThan.
type StaleFunc func(ctx context.Context, olderThan time.Duration) error

// ErrNotStarted is returned by Stop when Start was never called.
var ErrNotStarted = errors.New("runner not started")

// Runner manages background job processing
type Runner struct {
	queue      *Queue
	pool       *Pool
	config     Config
	logger     *slog.Logger
	errHandler func(job Job, err error)
	recoverFn  RecoverFunc
	staleFn    StaleFunc

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	monitor  sync.WaitGroup
}

var _ Submitter = (*Runner)(nil)

// NewRunner creates a new Runner
func NewRunner(config Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if config.StaleCheckInterval <= 0 {
		config.StaleCheckInterval = time.Minute
	}
	logger = logger.With("component", "worker_runner")

	queue := NewQueue(config.QueueSize, logger)
	r := &Runner{
		queue:  queue,
		pool:   NewPool(queue.Jobs(), config.WorkerCount, logger),
		config: config,
		logger: logger,
	}
	r.errHandler = func(job Job, err error) {
		// Default error handler just logs the error
		logger.Error("background job failed",
			"job_id", job.ID(),
			"job_kind", job.Kind(),
			"error", err)
	}
	return r
}

// SetErrorHandler allows setting a custom error handler function
func (r *Runner) SetErrorHandler(handler func(job Job, err error)) {
	r.errHandler = handler
}

// SetRecoverFunc sets the hook run once by Start.
func (r *Runner) SetRecoverFunc(fn RecoverFunc) {
	r.recoverFn = fn
}

// SetStaleFunc sets the hook run every StaleCheckInterval. It only runs
// when StaleAge is positive.
func (r *Runner) SetStaleFunc(fn StaleFunc) {
	r.staleFn = fn
}

// Submit adds a job to the queue without blocking. It returns
// ErrQueueFull or ErrQueueClosed when the job cannot be accepted.
func (r *Runner) Submit(_ context.Context, job Job) error {
	if err := r.queue.Enqueue(job); err != nil {
		return fmt.Errorf("failed to submit job %s: %w", job.ID(), err)
	}
	return nil
}

// Start launches the workers, runs the recovery hook, and starts the stale
// work monitor. A recovery failure is logged; the runner keeps going.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("runner already started")
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)

	r.pool.SetErrorHandler(func(job Job, err error) {
		if r.errHandler != nil {
			r.errHandler(job, err)
		}
	})
	r.pool.Start(ctx)

	if r.recoverFn != nil {
		if err := r.recoverFn(ctx); err != nil {
			r.logger.Error("failed to recover unfinished work", "error", err)
		}
	}

	if r.staleFn != nil && r.config.StaleAge > 0 {
		r.monitor.Add(1)
		go r.staleMonitor(ctx)
	}

	r.logger.Info("worker runner started",
		"worker_count", r.pool.workerCount,
		"queue_size", cap(r.queue.jobs))
	return nil
}

// Stop closes the queue, waits for queued and in-flight jobs to finish,
// and stops the stale monitor.
func (r *Runner) Stop() error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	r.stopOnce.Do(func() {
		r.cancel()
		r.monitor.Wait()
		r.queue.Close()
		r.pool.Wait()
		r.logger.Info("worker runner stopped")
	})
	return nil
}

// staleMonitor periodically asks the stale hook to settle work that has
// been in progress for too long.
func (r *Runner) staleMonitor(ctx context.Context) {
	defer r.monitor.Done()

	ticker := time.NewTicker(r.config.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.staleFn(ctx, r.config.StaleAge); err != nil && ctx.Err() == nil {
				r.logger.Error("failed to settle stale work", "error", err)
			}
		}
	}
}
