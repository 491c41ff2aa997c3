package events

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// InMemoryEventEmitter delivers every event to each registered handler in
// registration order, on the caller's goroutine.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

var _ Emitter = (*InMemoryEventEmitter)(nil)

func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{logger: logger.With("component", "event_emitter")}
}

// RegisterHandler subscribes handler to all later events.
func (e *InMemoryEventEmitter) RegisterHandler(handler Handler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	e.mu.Unlock()
}

// Emit hands event to every handler. A failing handler does not stop
// delivery to the rest; all failures are returned joined.
func (e *InMemoryEventEmitter) Emit(ctx context.Context, event ChangeEvent) error {
	e.mu.RLock()
	handlers := slices.Clone(e.handlers)
	e.mu.RUnlock()

	log := e.logger.With("event_name", event.EventName, "task_id", event.TaskID())
	if len(handlers) == 0 {
		log.Warn("event dropped, no handlers registered")
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h.HandleChange(ctx, event); err != nil {
			log.Error("event handler failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
