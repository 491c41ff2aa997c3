package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
)

// TaskStore is the keyed record store for tasks.
type TaskStore interface {
	// Get returns the task with the given ID or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Put creates or replaces a task.
	Put(ctx context.Context, task *domain.Task) error

	// PartialUpdate merges the patch into the stored task and returns the
	// updated task. Fields not named in the patch are preserved. It returns
	// ErrTaskNotFound when the task does not exist and
	// domain.ErrStatusConflict when patch.IfStatus does not match.
	PartialUpdate(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error)

	// ScanPage returns up to limit tasks following token, and the token for
	// the next page. An empty next token means the scan is exhausted.
	ScanPage(ctx context.Context, token string, limit int) ([]*domain.Task, string, error)

	// Delete removes the task or returns ErrTaskNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobStore persists job records for the proxy flow.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*domain.JobRecord, error)
	PutJob(ctx context.Context, job *domain.JobRecord) error

	// UpdateJobStatus sets the status and, when non-nil/non-empty, the output
	// and error of a job.
	UpdateJobStatus(ctx context.Context, id string, status domain.TaskStatus, output json.RawMessage, errMsg string) error

	// UpdateJobImages records the persisted artifact URLs of a job.
	UpdateJobImages(ctx context.Context, id string, images []string) error
}
