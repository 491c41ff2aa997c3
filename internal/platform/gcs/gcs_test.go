package gcs_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/phrazzld/genflow/internal/artifact"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/gcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *bufferWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestStorePut(t *testing.T) {
	t.Parallel()

	t.Run("writes through and returns the public url", func(t *testing.T) {
		w := &bufferWriter{}
		var gotKey string
		var gotOpts artifact.PutOptions
		store := gcs.NewWithWriter("genflow", func(_ context.Context, key string, opts artifact.PutOptions) gcs.ObjectWriter {
			gotKey, gotOpts = key, opts
			return w
		})

		url, err := store.Put(context.Background(), "a/b.mp3", strings.NewReader("audio"), 5, artifact.PutOptions{ContentType: "audio/mpeg"})
		require.NoError(t, err)

		assert.Equal(t, "https://storage.googleapis.com/genflow/a/b.mp3", url)
		assert.Equal(t, "a/b.mp3", gotKey)
		assert.Equal(t, "audio/mpeg", gotOpts.ContentType)
		assert.Equal(t, "audio", w.String())
		assert.True(t, w.closed)
	})

	t.Run("a failed commit is a storage error", func(t *testing.T) {
		store := gcs.NewWithWriter("genflow", func(context.Context, string, artifact.PutOptions) gcs.ObjectWriter {
			return &bufferWriter{closeErr: errors.New("precondition failed")}
		})

		_, err := store.Put(context.Background(), "k", strings.NewReader("x"), 1, artifact.PutOptions{})
		assert.ErrorIs(t, err, domain.ErrStorage)
	})

	t.Run("close without a client is a no-op", func(t *testing.T) {
		store := gcs.NewWithWriter("genflow", nil)
		assert.NoError(t, store.Close())
	})
}
