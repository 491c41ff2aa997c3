// Package filestore is an artifact.ObjectStore on the local filesystem. It is
// meant for development and tests; the server exposes the directory under
// the configured base URL.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/phrazzld/genflow/internal/artifact"
	"github.com/phrazzld/genflow/internal/store"
)

// MetadataSuffix names the sidecar file that holds an object's content type
// and metadata.
const MetadataSuffix = ".meta.json"

// Store writes objects below a root directory.
type Store struct {
	root    string
	baseURL string
}

var _ artifact.ObjectStore = (*Store)(nil)

type sidecar struct {
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New creates a Store rooted at dir, creating the directory if needed.
// Object URLs are baseURL joined with the object key.
func New(dir, baseURL string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filestore directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve filestore directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create filestore directory: %w", err)
	}
	return &Store{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the absolute directory objects are written to.
func (s *Store) Root() string {
	return s.root
}

// Put implements artifact.ObjectStore.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, _ int64, opts artifact.PutOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return "", store.NewStoreError("artifact", "put", "invalid key", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", store.NewStoreError("artifact", "put", "failed to create directory", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", store.NewStoreError("artifact", "put", "failed to create file", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return "", store.NewStoreError("artifact", "put", "failed to write object", err)
	}
	if err := f.Close(); err != nil {
		return "", store.NewStoreError("artifact", "put", "failed to close object", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", store.NewStoreError("artifact", "put", "failed to move object into place", err)
	}

	meta, err := json.Marshal(sidecar{ContentType: opts.ContentType, Metadata: opts.Metadata})
	if err != nil {
		return "", store.NewStoreError("artifact", "put", "failed to encode metadata", err)
	}
	if err := os.WriteFile(path+MetadataSuffix, meta, 0o644); err != nil {
		return "", store.NewStoreError("artifact", "put", "failed to write metadata", err)
	}

	return s.baseURL + "/" + key, nil
}

// ContentType returns the content type recorded for key.
func (s *Store) ContentType(key string) (string, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path + MetadataSuffix)
	if err != nil {
		return "", err
	}
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return "", err
	}
	return sc.ContentType, nil
}

// pathFor maps a key to a path inside root, rejecting keys that escape it.
func (s *Store) pathFor(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object key %q escapes the store root", key)
	}
	return path, nil
}

// ServeHTTP serves the object named by the request path, relative to the
// mount point the caller strips. Sidecar files are not served.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/")
	if strings.HasSuffix(key, MetadataSuffix) {
		http.NotFound(w, r)
		return
	}
	path, err := s.pathFor(key)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if contentType, err := s.ContentType(key); err == nil && contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
