package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	t.Run("entity not found errors match the domain sentinel", func(t *testing.T) {
		for _, err := range []error{ErrNotFound, ErrTaskNotFound, ErrJobNotFound} {
			assert.True(t, IsNotFoundError(err))
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}
		assert.Equal(t, "entity not found: task", ErrTaskNotFound.Error())
	})

	t.Run("store error wraps its cause and matches ErrStorage", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := NewStoreError("task", "update", "failed to update task", cause)

		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.False(t, IsNotFoundError(err))
		assert.Equal(t, "update operation on task failed: failed to update task: connection reset", err.Error())
	})

	t.Run("store error without cause", func(t *testing.T) {
		err := NewStoreError("job", "put", "empty id", nil)
		assert.Equal(t, "put operation on job failed: empty id", err.Error())
	})

	t.Run("wrapped not found", func(t *testing.T) {
		err := fmt.Errorf("get task: %w", ErrTaskNotFound)
		assert.True(t, IsNotFoundError(err))
	})
}
