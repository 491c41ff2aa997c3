package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("status and images updates merge into the record", func(t *testing.T) {
		s := NewJobStore()
		job := domain.NewJobRecord("pred-1", domain.TaskStatusStarting, json.RawMessage(`{"prompt":"a cat"}`), nil)
		require.NoError(t, s.PutJob(ctx, job))

		require.NoError(t, s.UpdateJobStatus(ctx, "pred-1", domain.TaskStatusSucceeded, json.RawMessage(`["https://x/1.png"]`), ""))
		require.NoError(t, s.UpdateJobImages(ctx, "pred-1", []string{"https://cdn/1.png"}))

		got, err := s.GetJob(ctx, "pred-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusSucceeded, got.Status)
		assert.JSONEq(t, `["https://x/1.png"]`, string(got.Output))
		assert.JSONEq(t, `{"prompt":"a cat"}`, string(got.Input))
		assert.Equal(t, []string{"https://cdn/1.png"}, got.Images)
		assert.True(t, got.HasImages())
	})

	t.Run("status update without output keeps the previous output", func(t *testing.T) {
		s := NewJobStore()
		job := domain.NewJobRecord("pred-2", domain.TaskStatusProcessing, nil, json.RawMessage(`"partial"`))
		require.NoError(t, s.PutJob(ctx, job))

		require.NoError(t, s.UpdateJobStatus(ctx, "pred-2", domain.TaskStatusFailed, nil, "upstream failed"))

		got, err := s.GetJob(ctx, "pred-2")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, got.Status)
		assert.Equal(t, "upstream failed", got.Error)
		assert.JSONEq(t, `"partial"`, string(got.Output))
	})

	t.Run("missing job is not found", func(t *testing.T) {
		s := NewJobStore()
		_, err := s.GetJob(ctx, "absent")
		assert.ErrorIs(t, err, store.ErrJobNotFound)
		assert.ErrorIs(t, s.UpdateJobImages(ctx, "absent", nil), store.ErrNotFound)
	})

	t.Run("expired job is treated as absent", func(t *testing.T) {
		s := NewJobStore()
		s.now = func() int64 { return 2_000 }
		job := &domain.JobRecord{ID: "old", Status: domain.TaskStatusStarting, TTL: 1_000}
		require.NoError(t, s.PutJob(ctx, job))

		_, err := s.GetJob(ctx, "old")
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}
