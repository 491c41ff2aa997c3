package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusStarting   TaskStatus = "starting"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskType selects the backend runner that processes a task.
type TaskType string

// Supported task types
const (
	TaskTypeImageGen  TaskType = "image-gen"
	TaskTypeVideoGen  TaskType = "video-gen"
	TaskTypeTextGen   TaskType = "text-gen"
	TaskTypeSpeechGen TaskType = "speech-gen"
	TaskTypeChat      TaskType = "chat"
)

// TaskTypes lists every supported task type in a stable order.
var TaskTypes = []TaskType{
	TaskTypeImageGen,
	TaskTypeVideoGen,
	TaskTypeTextGen,
	TaskTypeSpeechGen,
	TaskTypeChat,
}

// Common validation errors for Task
var (
	ErrEmptyTaskID          = errors.New("task ID cannot be empty")
	ErrInvalidTaskStatus    = errors.New("invalid task status")
	ErrOutputWithoutSuccess = errors.New("output may only be set on a succeeded task")
	ErrMissingOutput        = errors.New("succeeded task must have output")
	ErrErrorWithoutFailure  = errors.New("error may only be set on a failed task")
	ErrMissingError         = errors.New("failed task must have an error message")
)

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusStarting, TaskStatusProcessing, TaskStatusSucceeded, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// CanTransitionTo reports whether moving from s to next follows the lifecycle
// starting -> processing -> succeeded|failed.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusStarting:
		return next == TaskStatusProcessing
	case TaskStatusProcessing:
		return next == TaskStatusSucceeded || next == TaskStatusFailed
	default:
		return false
	}
}

// ValidateTransition returns ErrInvalidTransition when from -> to is not allowed.
func ValidateTransition(from, to TaskStatus) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskStatus, to)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsValid reports whether t is a supported task type.
func (t TaskType) IsValid() bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Task is a unit of asynchronous generation work tracked through its
// status lifecycle. It is mutated in place by the dispatcher; there is no
// separate history entity.
type Task struct {
	ID         uuid.UUID       `json:"id"`
	TaskType   TaskType        `json:"taskType"`
	Status     TaskStatus      `json:"status"`
	Input      json.RawMessage `json:"input"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	WebhookURL string          `json:"webhookUrl,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
	UpdatedAt  int64           `json:"updatedAt"`
}

// NewTask creates a task in the starting state with a fresh ID and
// timestamps. The input is validated against the schema for taskType.
func NewTask(taskType TaskType, input json.RawMessage, webhookURL string) (*Task, error) {
	if _, err := DecodeInput(taskType, input); err != nil {
		return nil, err
	}

	now := NowMillis()
	task := &Task{
		ID:         uuid.New(),
		TaskType:   taskType,
		Status:     TaskStatusStarting,
		Input:      input,
		WebhookURL: webhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks the task's structural invariants: a known status, output
// present iff succeeded and error present iff failed.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}

	hasOutput := len(t.Output) > 0 && string(t.Output) != "null"
	switch {
	case t.Status == TaskStatusSucceeded && !hasOutput:
		return ErrMissingOutput
	case t.Status != TaskStatusSucceeded && hasOutput:
		return ErrOutputWithoutSuccess
	case t.Status == TaskStatusFailed && t.Error == "":
		return ErrMissingError
	case t.Status != TaskStatusFailed && t.Error != "":
		return ErrErrorWithoutFailure
	}

	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Input = cloneRaw(t.Input)
	c.Output = cloneRaw(t.Output)
	return &c
}

// TaskPatch describes a partial update. Nil pointer fields are left
// unchanged. ClearOutput and ClearError explicitly remove those fields.
type TaskPatch struct {
	TaskType   *TaskType
	Status     *TaskStatus
	Input      json.RawMessage
	Output     json.RawMessage
	Error      *string
	WebhookURL *string

	ClearOutput bool
	ClearError  bool

	// UpdatedAt is applied when non-zero. Stores never let it move backwards.
	UpdatedAt int64

	// IfStatus makes the update conditional on the current status.
	// A mismatch yields ErrStatusConflict and leaves the record untouched.
	IfStatus *TaskStatus
}

// Apply merges the patch into a copy of t and returns it. It does not
// evaluate IfStatus; stores do that against their current record.
func (p TaskPatch) Apply(t *Task) *Task {
	out := t.Clone()
	if p.TaskType != nil {
		out.TaskType = *p.TaskType
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Input != nil {
		out.Input = cloneRaw(p.Input)
	}
	if p.ClearOutput {
		out.Output = nil
	}
	if p.Output != nil {
		out.Output = cloneRaw(p.Output)
	}
	if p.ClearError {
		out.Error = ""
	}
	if p.Error != nil {
		out.Error = *p.Error
	}
	if p.WebhookURL != nil {
		out.WebhookURL = *p.WebhookURL
	}
	if p.UpdatedAt != 0 {
		out.UpdatedAt = NextUpdatedAt(t.UpdatedAt, p.UpdatedAt)
	}
	return out
}

// NowMillis returns the current time in milliseconds since the epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NextUpdatedAt keeps updatedAt strictly increasing across transitions.
func NextUpdatedAt(previous, now int64) int64 {
	if now <= previous {
		return previous + 1
	}
	return now
}

// StatusPtr is a convenience for building patches.
func StatusPtr(s TaskStatus) *TaskStatus { return &s }

// StringPtr is a convenience for building patches.
func StringPtr(s string) *string { return &s }

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	c := make(json.RawMessage, len(r))
	copy(c, r)
	return c
}
