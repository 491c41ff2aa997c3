package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

// ObservedTaskStore decorates a TaskStore so that every successful write
// emits a ChangeEvent. Reads pass straight through.
//
// The write is the source of truth: an emission failure is logged and does
// not fail the write. Tasks whose INSERT was lost are picked up again by the
// dispatcher's startup redelivery.
type ObservedTaskStore struct {
	store.TaskStore
	emitter Emitter
	logger  *slog.Logger
}

var _ store.TaskStore = (*ObservedTaskStore)(nil)

// NewObservedTaskStore wraps inner.
func NewObservedTaskStore(inner store.TaskStore, emitter Emitter, logger *slog.Logger) *ObservedTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObservedTaskStore{
		TaskStore: inner,
		emitter:   emitter,
		logger:    logger.With("component", "observed_task_store"),
	}
}

// Put stores the task and emits INSERT.
func (s *ObservedTaskStore) Put(ctx context.Context, task *domain.Task) error {
	if err := s.TaskStore.Put(ctx, task); err != nil {
		return err
	}
	s.emit(ctx, NewInsertEvent(task))
	return nil
}

// PartialUpdate applies the patch and emits MODIFY with both images.
func (s *ObservedTaskStore) PartialUpdate(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error) {
	before, err := s.TaskStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	after, err := s.TaskStore.PartialUpdate(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, NewModifyEvent(before, after))
	return after, nil
}

// Delete removes the task and emits REMOVE with the last image.
func (s *ObservedTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	before, err := s.TaskStore.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.TaskStore.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, NewRemoveEvent(before))
	return nil
}

func (s *ObservedTaskStore) emit(ctx context.Context, event ChangeEvent) {
	if err := s.emitter.Emit(ctx, event); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to emit change event",
			"event_name", event.EventName,
			"task_id", event.TaskID(),
			"error", err)
	}
}
