package memory_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/memory"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.TaskTypeImageGen, json.RawMessage(`{"prompt":"a cat"}`), "")
	require.NoError(t, err)
	return task
}

func TestTaskStore_GetPutDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stored task round trips as an independent copy", func(t *testing.T) {
		s := memory.NewTaskStore()
		task := newTask(t)
		require.NoError(t, s.Put(ctx, task))

		task.Status = domain.TaskStatusFailed

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusStarting, got.Status)

		got.Input[0] = 'x'
		again, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"prompt":"a cat"}`, string(again.Input))
	})

	t.Run("missing task is not found", func(t *testing.T) {
		s := memory.NewTaskStore()
		_, err := s.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, uuid.New()), store.ErrNotFound)
	})

	t.Run("delete removes the task", func(t *testing.T) {
		s := memory.NewTaskStore()
		task := newTask(t)
		require.NoError(t, s.Put(ctx, task))
		require.NoError(t, s.Delete(ctx, task.ID))

		_, err := s.Get(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.Zero(t, s.Len())
	})

	t.Run("put rejects a task without ID", func(t *testing.T) {
		s := memory.NewTaskStore()
		err := s.Put(ctx, &domain.Task{})
		assert.ErrorIs(t, err, domain.ErrStorage)
	})
}

func TestTaskStore_PartialUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fields not named in the patch are preserved", func(t *testing.T) {
		s := memory.NewTaskStore()
		task := newTask(t)
		task.WebhookURL = "https://example.com/hook"
		require.NoError(t, s.Put(ctx, task))

		updated, err := s.PartialUpdate(ctx, task.ID, domain.TaskPatch{
			Status: domain.StatusPtr(domain.TaskStatusProcessing),
		})
		require.NoError(t, err)

		assert.Equal(t, domain.TaskStatusProcessing, updated.Status)
		assert.Equal(t, "https://example.com/hook", updated.WebhookURL)
		assert.JSONEq(t, string(task.Input), string(updated.Input))
		assert.Greater(t, updated.UpdatedAt, task.UpdatedAt-1)
	})

	t.Run("updatedAt never moves backwards", func(t *testing.T) {
		s := memory.NewTaskStore()
		task := newTask(t)
		task.UpdatedAt = domain.NowMillis() + 60_000
		require.NoError(t, s.Put(ctx, task))

		updated, err := s.PartialUpdate(ctx, task.ID, domain.TaskPatch{
			Status: domain.StatusPtr(domain.TaskStatusProcessing),
		})
		require.NoError(t, err)
		assert.Equal(t, task.UpdatedAt+1, updated.UpdatedAt)
	})

	t.Run("status mismatch is a conflict and leaves the record untouched", func(t *testing.T) {
		s := memory.NewTaskStore()
		task := newTask(t)
		require.NoError(t, s.Put(ctx, task))

		_, err := s.PartialUpdate(ctx, task.ID, domain.TaskPatch{
			Status:   domain.StatusPtr(domain.TaskStatusFailed),
			Error:    domain.StringPtr("boom"),
			IfStatus: domain.StatusPtr(domain.TaskStatusProcessing),
		})
		assert.ErrorIs(t, err, domain.ErrStatusConflict)

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusStarting, got.Status)
		assert.Empty(t, got.Error)
	})

	t.Run("missing task is not found", func(t *testing.T) {
		s := memory.NewTaskStore()
		_, err := s.PartialUpdate(ctx, uuid.New(), domain.TaskPatch{})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("concurrent compare-and-swap has exactly one winner", func(t *testing.T) {
		s := memory.NewTaskStore()
		task := newTask(t)
		require.NoError(t, s.Put(ctx, task))

		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.PartialUpdate(ctx, task.ID, domain.TaskPatch{
					Status:   domain.StatusPtr(domain.TaskStatusProcessing),
					IfStatus: domain.StatusPtr(domain.TaskStatusStarting),
				})
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, domain.ErrStatusConflict):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(19), conflicts.Load())
	})
}

func TestTaskStore_Scan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := memory.NewTaskStore()
	want := make(map[uuid.UUID]bool)
	for range 25 {
		task := newTask(t)
		want[task.ID] = true
		require.NoError(t, s.Put(ctx, task))
	}

	t.Run("pages cover every task exactly once", func(t *testing.T) {
		all, err := store.CollectAll(ctx, s, store.ScanOptions{PageSize: 7})
		require.NoError(t, err)
		require.Len(t, all, 25)

		seen := make(map[uuid.UUID]bool)
		for _, task := range all {
			assert.False(t, seen[task.ID], "task returned twice")
			seen[task.ID] = true
		}
		assert.Equal(t, want, seen)
	})

	t.Run("page size bounds each page", func(t *testing.T) {
		page, next, err := s.ScanPage(ctx, "", 10)
		require.NoError(t, err)
		assert.Len(t, page, 10)
		assert.NotEmpty(t, next)

		last, next, err := s.ScanPage(ctx, page[9].ID.String(), 100)
		require.NoError(t, err)
		assert.Len(t, last, 15)
		assert.Empty(t, next)
	})

	t.Run("malformed token is rejected", func(t *testing.T) {
		_, _, err := s.ScanPage(ctx, "not-a-uuid", 10)
		assert.ErrorIs(t, err, store.ErrInvalidPageToken)
	})
}
