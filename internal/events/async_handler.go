package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/genflow/internal/worker"
)

// AsyncHandler runs another handler on the worker runner. Each event is an
// independent job, so the emitter returns as soon as the job is queued and
// events for different tasks are handled concurrently.
type AsyncHandler struct {
	next      Handler
	submitter worker.Submitter
	logger    *slog.Logger
}

var _ Handler = (*AsyncHandler)(nil)

// NewAsyncHandler creates an AsyncHandler that submits next to submitter.
func NewAsyncHandler(next Handler, submitter worker.Submitter, logger *slog.Logger) *AsyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncHandler{
		next:      next,
		submitter: submitter,
		logger:    logger.With("component", "async_event_handler"),
	}
}

// HandleChange queues the event. It fails only when the job cannot be
// queued.
func (h *AsyncHandler) HandleChange(ctx context.Context, event ChangeEvent) error {
	id := fmt.Sprintf("%s:%s", event.EventName, event.TaskID())
	job := worker.NewJob(id, "change_event", func(ctx context.Context) error {
		return h.next.HandleChange(ctx, event)
	})

	if err := h.submitter.Submit(ctx, job); err != nil {
		h.logger.Error("failed to queue change event",
			"event_name", event.EventName,
			"task_id", event.TaskID(),
			"error", err)
		return err
	}
	return nil
}
