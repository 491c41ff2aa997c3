// Package gcs is an artifact.ObjectStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/phrazzld/genflow/internal/artifact"
	"github.com/phrazzld/genflow/internal/store"
	"google.golang.org/api/option"
)

// ObjectWriter receives an object's bytes. The object is committed on Close.
type ObjectWriter interface {
	io.Writer
	Close() error
}

// WriterFunc opens a writer for key with the given attributes.
type WriterFunc func(ctx context.Context, key string, opts artifact.PutOptions) ObjectWriter

// Store uploads artifacts to a single bucket.
type Store struct {
	bucket    string
	newWriter WriterFunc
	closer    io.Closer
}

var _ artifact.ObjectStore = (*Store)(nil)

// New creates a Store using application default credentials unless opts
// say otherwise.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	handle := client.Bucket(bucket)
	s := NewWithWriter(bucket, func(ctx context.Context, key string, opts artifact.PutOptions) ObjectWriter {
		w := handle.Object(key).NewWriter(ctx)
		w.ContentType = opts.ContentType
		w.Metadata = opts.Metadata
		return w
	})
	s.closer = client
	return s, nil
}

// NewWithWriter builds a Store on a custom writer factory.
func NewWithWriter(bucket string, fn WriterFunc) *Store {
	return &Store{bucket: bucket, newWriter: fn}
}

// Put implements artifact.ObjectStore.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, _ int64, opts artifact.PutOptions) (string, error) {
	w := s.newWriter(ctx, key, opts)
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", store.NewStoreError("artifact", "put", "gcs write failed", err)
	}
	if err := w.Close(); err != nil {
		return "", store.NewStoreError("artifact", "put", "gcs upload failed", err)
	}
	return s.URL(key), nil
}

// URL is the public address of key.
func (s *Store) URL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
