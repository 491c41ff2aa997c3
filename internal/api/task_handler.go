package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

// Validation messages for task requests.
const (
	msgBodyRequired       = "Request body is required"
	msgBodyNotObject      = "Request body must be a JSON object"
	msgTaskTypeRequired   = "taskType is required and must be a string"
	msgTaskTypeString     = "taskType must be a string"
	msgStatusString       = "status must be a string"
	msgPayloadObject      = "payload must be an object"
	msgErrorString        = "error must be a string"
	msgWebhookURLString   = "webhookUrl must be a string"
	msgSucceededForbidden = "status succeeded cannot be set directly"
	msgFailedNeedsError   = "error is required when status is failed"
)

// TaskHandler serves the task CRUD endpoints.
type TaskHandler struct {
	tasks  store.TaskStore
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler. tasks should be the observed store
// so that creating a task triggers its dispatch.
func NewTaskHandler(tasks store.TaskStore, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	taskType, ok, err := stringField(fields, "taskType", msgTaskTypeRequired)
	if err != nil || !ok || taskType == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, msgTaskTypeRequired)
		return
	}

	input, ok, err := objectField(fields, "input", domain.ErrInputNotObject.Error())
	if err != nil || !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, domain.ErrInputNotObject.Error())
		return
	}

	webhookURL, _, err := stringField(fields, "webhookUrl", msgWebhookURLString)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, msgWebhookURLString)
		return
	}

	task, err := domain.NewTask(domain.TaskType(taskType), input, webhookURL)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.tasks.Put(r.Context(), task); err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.TaskType)))
	shared.RespondWithData(w, r, http.StatusCreated, task)
}

// ListTasks handles GET /api/tasks. Every page of the store is read.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := store.CollectAll(r.Context(), h.tasks, store.ScanOptions{})
	if err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}
	shared.RespondWithData(w, r, http.StatusOK, tasks)
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}
	shared.RespondWithData(w, r, http.StatusOK, task)
}

// UpdateTask handles PATCH and PUT /api/tasks/{id}. Only the members
// present in the body change. A status change must follow the lifecycle.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	existing, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}

	patch, err := buildPatch(existing, fields)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	updated, err := h.tasks.PartialUpdate(r.Context(), id, patch)
	if err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}

	log.Info("task updated",
		slog.String("task_id", id.String()),
		slog.String("status", string(updated.Status)))
	shared.RespondWithData(w, r, http.StatusOK, updated)
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.tasks.Delete(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, msgInternal)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("task deleted", slog.String("task_id", id.String()))
	shared.RespondWithData(w, r, http.StatusOK, nil)
}

func (h *TaskHandler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, bool) {
	fields, err := shared.DecodeObject(r)
	switch {
	case errors.Is(err, shared.ErrEmptyBody):
		shared.RespondWithError(w, r, http.StatusBadRequest, msgBodyRequired)
		return nil, false
	case err != nil:
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, msgBodyNotObject, err)
		return nil, false
	}
	return fields, true
}

// buildPatch validates an update body against the current task and turns
// it into a conditional patch.
func buildPatch(existing *domain.Task, fields map[string]json.RawMessage) (domain.TaskPatch, error) {
	patch := domain.TaskPatch{
		UpdatedAt: domain.NowMillis(),
		IfStatus:  domain.StatusPtr(existing.Status),
	}
	invalid := func(message string) error {
		return domain.NewValidationError("", message, domain.ErrValidation)
	}

	taskType := existing.TaskType
	if v, ok, err := stringField(fields, "taskType", msgTaskTypeString); err != nil {
		return patch, err
	} else if ok {
		taskType = domain.TaskType(v)
		if !taskType.IsValid() {
			return patch, invalid("unsupported task type: " + v)
		}
		patch.TaskType = &taskType
	}

	input := existing.Input
	if v, ok, err := objectField(fields, "payload", msgPayloadObject); err != nil {
		return patch, err
	} else if ok {
		input = v
		patch.Input = v
	}
	if patch.TaskType != nil || patch.Input != nil {
		if _, err := domain.DecodeInput(taskType, input); err != nil {
			return patch, err
		}
	}

	status := existing.Status
	if v, ok, err := stringField(fields, "status", msgStatusString); err != nil {
		return patch, err
	} else if ok && domain.TaskStatus(v) != existing.Status {
		status = domain.TaskStatus(v)
		if err := domain.ValidateTransition(existing.Status, status); err != nil {
			return patch, err
		}
		if status == domain.TaskStatusSucceeded {
			return patch, invalid(msgSucceededForbidden)
		}
		patch.Status = &status
	}

	if v, ok, err := stringField(fields, "error", msgErrorString); err != nil {
		return patch, err
	} else if ok && v != "" {
		if status != domain.TaskStatusFailed {
			return patch, invalid(domain.ErrErrorWithoutFailure.Error())
		}
		patch.Error = &v
	}
	if status == domain.TaskStatusFailed && patch.Status != nil && patch.Error == nil {
		return patch, invalid(msgFailedNeedsError)
	}

	if v, ok, err := stringField(fields, "webhookUrl", msgWebhookURLString); err != nil {
		return patch, err
	} else if ok {
		patch.WebhookURL = &v
	}

	return patch, nil
}
