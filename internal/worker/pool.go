package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool runs a fixed number of workers that consume a queue until it is
// closed and drained.
type Pool struct {
	jobs         <-chan Job
	workerCount  int
	wg           sync.WaitGroup
	logger       *slog.Logger
	errorHandler func(job Job, err error)
}

// NewPool creates a pool reading from jobs. A non-positive worker count
// falls back to 1.
func NewPool(jobs <-chan Job, workerCount int, logger *slog.Logger) *Pool {
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", workerCount,
			"default_count", 1)
		workerCount = 1
	}
	return &Pool{
		jobs:        jobs,
		workerCount: workerCount,
		logger:      logger,
	}
}

// SetErrorHandler sets the function called when a job fails. It must be
// set before Start.
func (p *Pool) SetErrorHandler(handler func(job Job, err error)) {
	p.errorHandler = handler
}

// Start launches the workers. Jobs receive a context derived from ctx that
// is not canceled when ctx is, so in-flight work finishes during shutdown.
func (p *Pool) Start(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(jobCtx, i)
	}
}

// Wait blocks until every worker has exited, which happens once the queue
// is closed and drained.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)
	for job := range p.jobs {
		p.process(ctx, job, id)
	}
	p.logger.Debug("job channel closed, stopping worker", "worker_id", id)
}

func (p *Pool) process(ctx context.Context, job Job, workerID int) {
	log := p.logger.With(
		"job_id", job.ID(),
		"job_kind", job.Kind(),
		"worker_id", workerID,
	)

	start := time.Now()
	err := p.execute(ctx, job)
	if err != nil {
		log.Error("job execution failed", "error", err, "duration", time.Since(start))
		if p.errorHandler != nil {
			p.errorHandler(job, err)
		}
		return
	}
	log.Debug("job completed", "duration", time.Since(start))
}

// execute runs the job, turning a panic into an error so one bad job does
// not take the worker down.
func (p *Pool) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Execute(ctx)
}
