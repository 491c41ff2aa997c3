package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the Queue
var (
	ErrQueueClosed = errors.New("job queue is closed")
	ErrQueueFull   = errors.New("job queue is full")
)

// Queue is a buffered job queue. Enqueue never blocks.
type Queue struct {
	mu     sync.RWMutex
	jobs   chan Job
	closed bool
	logger *slog.Logger
}

// NewQueue creates a queue with the specified buffer size.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		jobs:   make(chan Job, size),
		logger: logger,
	}
}

// Enqueue adds a job to the queue.
// Returns an error if the queue is full or closed
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued",
			"job_id", job.ID(),
			"job_kind", job.Kind(),
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Close prevents further submission. Jobs already queued are still
// delivered to readers.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("job queue closed", "pending", len(q.jobs))
	}
}

// Jobs returns the channel workers consume from.
func (q *Queue) Jobs() <-chan Job {
	return q.jobs
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.jobs)
}
