// Package dispatch drives newly created tasks through their lifecycle. It
// reacts to task change events, runs the backend registered for the task
// type, stores the artifacts and notifies listeners of the outcome.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/events"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

// StaleErrorMessage is recorded on tasks that stayed in processing too long.
const StaleErrorMessage = "processing timed out"

// RunnerLookup resolves the backend runner for a task type.
type RunnerLookup interface {
	Lookup(taskType domain.TaskType) (backend.Runner, error)
}

// ResultPersister turns a raw backend result into the task output.
type ResultPersister interface {
	Persist(ctx context.Context, task *domain.Task, res backend.RawResult) (json.RawMessage, error)
}

// Notifier announces a task that reached a terminal state.
type Notifier interface {
	Notify(ctx context.Context, task *domain.Task) error
}

// Dispatcher handles task change events.
type Dispatcher struct {
	store     store.TaskStore
	runners   RunnerLookup
	persister ResultPersister
	notifier  Notifier
	tr        transitioner
	now       func() time.Time
	logger    *slog.Logger
}

var _ events.Handler = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the clock used for timestamps and stale checks.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a Dispatcher. The store must be the undecorated
// task store so that the dispatcher's own writes do not produce events.
func NewDispatcher(
	taskStore store.TaskStore,
	runners RunnerLookup,
	persister ResultPersister,
	notifier Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:     taskStore,
		runners:   runners,
		persister: persister,
		notifier:  notifier,
		now:       time.Now,
		logger:    logger.With("component", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.tr = transitioner{store: taskStore, now: d.now}
	return d
}

// HandleChange implements events.Handler.
func (d *Dispatcher) HandleChange(ctx context.Context, event events.ChangeEvent) error {
	return d.Handle(ctx, event)
}

// Handle processes a single change event. Only the insertion of a task in
// the starting state does any work; everything else is skipped.
//
// Backend and artifact failures end in a failed task and are not returned.
// Storage failures and notification failures are returned. A notification
// failure never reverts the stored status.
func (d *Dispatcher) Handle(ctx context.Context, event events.ChangeEvent) error {
	task := event.NewImage
	if task == nil {
		return nil
	}

	log := logger.FromContextOrDefault(ctx, d.logger).With(
		"task_id", task.ID.String(),
		"task_type", string(task.TaskType),
		"event_name", string(event.EventName))

	if task.Status != domain.TaskStatusStarting {
		log.Debug("skipping task that is not starting", "status", task.Status)
		return nil
	}
	if event.EventName != events.EventInsert {
		log.Debug("skipping non-insert event")
		return nil
	}

	runner, err := d.runners.Lookup(task.TaskType)
	if err != nil {
		log.Warn("no backend for task type, leaving task untouched", "error", err)
		return nil
	}

	processing, err := d.tr.start(ctx, task.ID)
	switch {
	case errors.Is(err, domain.ErrStatusConflict):
		log.Info("task already picked up, skipping duplicate delivery")
		return nil
	case errors.Is(err, store.ErrTaskNotFound):
		log.Info("task deleted before dispatch")
		return nil
	case err != nil:
		log.Error("failed to mark task processing", "error", err)
		return fmt.Errorf("failed to mark task %s processing: %w", task.ID, err)
	}

	log.Info("processing task")
	final, err := d.execute(ctx, runner, processing, log)
	if err != nil {
		return err
	}
	if final == nil {
		return nil
	}

	return d.notify(ctx, final, log)
}

// execute runs the backend and records the terminal status. A nil task
// with a nil error means another writer already settled the task.
func (d *Dispatcher) execute(ctx context.Context, runner backend.Runner, task *domain.Task, log *slog.Logger) (*domain.Task, error) {
	output, runErr := d.run(ctx, runner, task)

	var (
		final *domain.Task
		err   error
	)
	if runErr != nil {
		log.Warn("task failed", "error", runErr)
		final, err = d.tr.fail(ctx, task.ID, runErr.Error())
	} else {
		final, err = d.tr.succeed(ctx, task.ID, output)
	}

	switch {
	case errors.Is(err, domain.ErrStatusConflict), errors.Is(err, store.ErrTaskNotFound):
		log.Warn("task changed while processing, dropping result", "error", err)
		return nil, nil
	case err != nil:
		log.Error("failed to record task outcome", "error", err)
		return nil, fmt.Errorf("failed to record outcome of task %s: %w", task.ID, err)
	}

	log.Info("task finished", "status", final.Status)
	return final, nil
}

func (d *Dispatcher) run(ctx context.Context, runner backend.Runner, task *domain.Task) (json.RawMessage, error) {
	res, err := runner.Run(ctx, task)
	if err != nil {
		return nil, err
	}
	return d.persister.Persist(ctx, task, res)
}

func (d *Dispatcher) notify(ctx context.Context, task *domain.Task, log *slog.Logger) error {
	if d.notifier == nil {
		return nil
	}
	if err := d.notifier.Notify(ctx, task); err != nil {
		log.Error("failed to notify task outcome", "error", err)
		return fmt.Errorf("failed to notify outcome of task %s: %w", task.ID, err)
	}
	return nil
}

// HandleBatch handles every event in order, continuing past failures. The
// returned error joins every failure.
func (d *Dispatcher) HandleBatch(ctx context.Context, batch []events.ChangeEvent) error {
	var errs []error
	for _, event := range batch {
		if err := d.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Redeliver hands an INSERT event to h for every task that has been in the
// starting state for at least olderThan. It runs at startup with zero age so
// tasks from a previous process are picked up, and periodically so a task
// whose event was dropped (full queue, failed status write) still runs.
// Duplicate deliveries are settled by the status guard in Handle.
func (d *Dispatcher) Redeliver(ctx context.Context, h events.Handler, olderThan time.Duration) error {
	cutoff := d.now().Add(-olderThan).UnixMilli()

	var (
		errs  []error
		count int
	)
	for task, err := range store.Scan(ctx, d.store, store.ScanOptions{}) {
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to scan tasks: %w", err))
			break
		}
		if task.Status != domain.TaskStatusStarting || task.UpdatedAt > cutoff {
			continue
		}
		if err := h.HandleChange(ctx, events.NewInsertEvent(task)); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}

	if count > 0 {
		d.logger.Info("redelivered starting tasks", "count", count)
	}
	return errors.Join(errs...)
}

// Sweep returns the runner's periodic stale hook: starting tasks older than
// redeliverAge are handed to h again, then processing tasks older than the
// hook's age are failed.
func (d *Dispatcher) Sweep(h events.Handler, redeliverAge time.Duration) func(ctx context.Context, olderThan time.Duration) error {
	return func(ctx context.Context, olderThan time.Duration) error {
		return errors.Join(d.Redeliver(ctx, h, redeliverAge), d.FailStale(ctx, olderThan))
	}
}

// FailStale fails every task that has been processing for longer than
// olderThan and notifies its listeners.
func (d *Dispatcher) FailStale(ctx context.Context, olderThan time.Duration) error {
	cutoff := d.now().Add(-olderThan).UnixMilli()

	var errs []error
	for task, err := range store.Scan(ctx, d.store, store.ScanOptions{}) {
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to scan tasks: %w", err))
			break
		}
		if task.Status != domain.TaskStatusProcessing || task.UpdatedAt > cutoff {
			continue
		}

		log := d.logger.With("task_id", task.ID.String(), "task_type", string(task.TaskType))
		failed, err := d.tr.fail(ctx, task.ID, StaleErrorMessage)
		switch {
		case errors.Is(err, domain.ErrStatusConflict), errors.Is(err, store.ErrTaskNotFound):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("failed to fail stale task %s: %w", task.ID, err))
			continue
		}

		log.Warn("failed stale task", "age_ms", d.now().UnixMilli()-task.UpdatedAt)
		if err := d.notify(ctx, failed, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
