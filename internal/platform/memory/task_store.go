// Package memory provides in-process implementations of the store
// interfaces. They are used by tests and by the server when no database is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// TaskStore keeps tasks in a map guarded by a read/write mutex. Values are
// deep-copied on the way in and out, so callers never share state with the
// store.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore returns an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Put implements store.TaskStore.
func (s *TaskStore) Put(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if task == nil || task.ID == uuid.Nil {
		return store.NewStoreError("task", "put", "task ID is required", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task.Clone()
	return nil
}

// PartialUpdate implements store.TaskStore. The status check and the write
// happen under the same lock, which makes IfStatus a compare-and-swap.
func (s *TaskStore) PartialUpdate(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if patch.IfStatus != nil && current.Status != *patch.IfStatus {
		return nil, domain.ErrStatusConflict
	}

	if patch.UpdatedAt == 0 {
		patch.UpdatedAt = domain.NowMillis()
	}
	updated := patch.Apply(current)
	s.tasks[id] = updated
	return updated.Clone(), nil
}

// ScanPage implements store.TaskStore. Tasks are ordered by ID and the page
// token is the last ID of the previous page, so concurrent inserts never
// shift a scan that is already in progress.
func (s *TaskStore) ScanPage(ctx context.Context, token string, limit int) ([]*domain.Task, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	var after string
	if token != "" {
		id, err := uuid.Parse(token)
		if err != nil {
			return nil, "", store.ErrInvalidPageToken
		}
		after = id.String()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		if key := id.String(); key > after {
			ids = append(ids, key)
		}
	}
	sort.Strings(ids)

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = ids[limit-1]
	}

	page := make([]*domain.Task, 0, len(ids))
	for _, key := range ids {
		page = append(page, s.tasks[uuid.MustParse(key)].Clone())
	}
	return page, next, nil
}

// Delete implements store.TaskStore.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// Len returns the number of stored tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
