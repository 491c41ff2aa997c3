package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// transitioner is the only writer of task status during processing. Every
// write is conditional on the status the caller believes the task has, so
// two deliveries of the same event cannot both move a task forward.
type transitioner struct {
	store store.TaskStore
	now   func() time.Time
}

func (t transitioner) stamp() int64 {
	return t.now().UnixMilli()
}

// start moves a task from starting to processing.
func (t transitioner) start(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return t.store.PartialUpdate(ctx, id, domain.TaskPatch{
		Status:    domain.StatusPtr(domain.TaskStatusProcessing),
		UpdatedAt: t.stamp(),
		IfStatus:  domain.StatusPtr(domain.TaskStatusStarting),
	})
}

// succeed moves a processing task to succeeded with its output.
func (t transitioner) succeed(ctx context.Context, id uuid.UUID, output json.RawMessage) (*domain.Task, error) {
	return t.store.PartialUpdate(ctx, id, domain.TaskPatch{
		Status:     domain.StatusPtr(domain.TaskStatusSucceeded),
		Output:     output,
		ClearError: true,
		UpdatedAt:  t.stamp(),
		IfStatus:   domain.StatusPtr(domain.TaskStatusProcessing),
	})
}

// fail moves a processing task to failed. Any output is removed.
func (t transitioner) fail(ctx context.Context, id uuid.UUID, message string) (*domain.Task, error) {
	if message == "" {
		message = "unknown error"
	}
	return t.store.PartialUpdate(ctx, id, domain.TaskPatch{
		Status:      domain.StatusPtr(domain.TaskStatusFailed),
		Error:       domain.StringPtr(message),
		ClearOutput: true,
		UpdatedAt:   t.stamp(),
		IfStatus:    domain.StatusPtr(domain.TaskStatusProcessing),
	})
}
