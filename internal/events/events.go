package events

import (
	"context"

	"github.com/phrazzld/genflow/internal/domain"
)

// EventName says what happened to a record.
type EventName string

// Change event names
const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// ChangeEvent describes one change to a task record. NewImage is the record
// after the change and is nil for removals; OldImage is the record before
// the change and is nil for inserts.
type ChangeEvent struct {
	EventName EventName    `json:"eventName"`
	NewImage  *domain.Task `json:"newImage,omitempty"`
	OldImage  *domain.Task `json:"oldImage,omitempty"`
}

// TaskID returns the ID of the task the event is about.
func (e ChangeEvent) TaskID() string {
	switch {
	case e.NewImage != nil:
		return e.NewImage.ID.String()
	case e.OldImage != nil:
		return e.OldImage.ID.String()
	default:
		return ""
	}
}

// NewInsertEvent creates an INSERT event for a freshly stored task.
func NewInsertEvent(task *domain.Task) ChangeEvent {
	return ChangeEvent{EventName: EventInsert, NewImage: task.Clone()}
}

// NewModifyEvent creates a MODIFY event.
func NewModifyEvent(oldTask, newTask *domain.Task) ChangeEvent {
	return ChangeEvent{EventName: EventModify, NewImage: newTask.Clone(), OldImage: oldTask.Clone()}
}

// NewRemoveEvent creates a REMOVE event.
func NewRemoveEvent(oldTask *domain.Task) ChangeEvent {
	return ChangeEvent{EventName: EventRemove, OldImage: oldTask.Clone()}
}

// Handler defines an interface for components that react to record changes.
type Handler interface {
	// HandleChange processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleChange(ctx context.Context, event ChangeEvent) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, event ChangeEvent) error

// HandleChange implements Handler.
func (f HandlerFunc) HandleChange(ctx context.Context, event ChangeEvent) error {
	return f(ctx, event)
}

// Emitter defines an interface for components that can emit change events.
// This allows the store to publish changes without direct knowledge of handlers.
type Emitter interface {
	// Emit publishes the given event to all registered handlers.
	Emit(ctx context.Context, event ChangeEvent) error
}
