// Package worker runs background jobs on a bounded in-memory queue with a
// fixed number of workers. It keeps long-running work such as dispatching a
// task or polling a prediction off the HTTP request path, and runs the
// startup recovery and periodic stale-work hooks.
package worker

import "context"

// Job is a unit of background work.
type Job interface {
	// ID identifies the job in logs.
	ID() string

	// Kind names the category of work, e.g. "dispatch" or "poll".
	Kind() string

	// Execute runs the job.
	Execute(ctx context.Context) error
}

type funcJob struct {
	id   string
	kind string
	fn   func(ctx context.Context) error
}

func (j funcJob) ID() string                        { return j.id }
func (j funcJob) Kind() string                      { return j.kind }
func (j funcJob) Execute(ctx context.Context) error { return j.fn(ctx) }

// NewJob wraps fn as a Job.
func NewJob(id, kind string, fn func(ctx context.Context) error) Job {
	return funcJob{id: id, kind: kind, fn: fn}
}

// Submitter accepts jobs for background execution.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}
