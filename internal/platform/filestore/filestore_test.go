package filestore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phrazzld/genflow/internal/artifact"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePut(t *testing.T) {
	t.Parallel()

	t.Run("writes the object and returns its url", func(t *testing.T) {
		dir := t.TempDir()
		s, err := filestore.New(dir, "http://localhost:8080/artifacts/")
		require.NoError(t, err)

		url, err := s.Put(context.Background(), "task-1/2025/01/02/a.png", strings.NewReader("png-bytes"), 9,
			artifact.PutOptions{ContentType: "image/png", Metadata: map[string]string{"generated-by": "genflow"}})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/artifacts/task-1/2025/01/02/a.png", url)

		data, err := os.ReadFile(filepath.Join(dir, "task-1", "2025", "01", "02", "a.png"))
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))

		ct, err := s.ContentType("task-1/2025/01/02/a.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", ct)
	})

	t.Run("rejects keys outside the root", func(t *testing.T) {
		s, err := filestore.New(t.TempDir(), "http://localhost")
		require.NoError(t, err)

		for _, key := range []string{"", "/etc/passwd", "../outside.txt", "a/../../b"} {
			_, err := s.Put(context.Background(), key, strings.NewReader("x"), 1, artifact.PutOptions{})
			assert.Error(t, err, "key %q", key)
			assert.ErrorIs(t, err, domain.ErrStorage, "key %q", key)
		}
	})

	t.Run("canceled context is not written", func(t *testing.T) {
		s, err := filestore.New(t.TempDir(), "http://localhost")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = s.Put(ctx, "k.txt", strings.NewReader("x"), 1, artifact.PutOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := filestore.New("", "http://localhost")
	assert.Error(t, err)
}

func TestStoreServeHTTP(t *testing.T) {
	t.Parallel()

	s, err := filestore.New(t.TempDir(), "http://localhost/artifacts")
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "task-1/a.mp3", strings.NewReader("mp3-bytes"), 9,
		artifact.PutOptions{ContentType: "audio/mpeg"})
	require.NoError(t, err)

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	t.Run("serves the object with its content type", func(t *testing.T) {
		rec := serve(http.MethodGet, "/task-1/a.mp3")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, "mp3-bytes", rec.Body.String())
	})

	t.Run("hides sidecar files", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/task-1/a.mp3"+filestore.MetadataSuffix).Code)
	})

	t.Run("missing objects and directories are not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/task-1/missing.png").Code)
		assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/task-1").Code)
	})

	t.Run("rejects writes", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, serve(http.MethodPost, "/task-1/a.mp3").Code)
	})
}
