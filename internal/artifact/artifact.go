// Package artifact copies generated files from short-lived upstream URLs
// into durable object storage and assembles the task output that points at
// them.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GeneratedBy is recorded in every object's metadata.
const GeneratedBy = "genflow"

// Metadata keys attached to every stored object.
const (
	MetaGeneratedBy    = "generated-by"
	MetaTaskType       = "task-type"
	MetaGenerationDate = "generation-date"
)

// ErrNoArtifacts is returned when a result yields nothing that could be
// stored: an empty URL list, or a list where every item failed.
var ErrNoArtifacts = errors.New("no artifacts could be persisted")

// PutOptions describes an object being stored.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is a durable blob store that serves stored objects at a
// stable URL.
type ObjectStore interface {
	// Put stores body under key and returns the object's public URL.
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (string, error)
}

// ObjectKey builds the storage key for an artifact:
// <owner>/YYYY/MM/DD/<uuid>.<ext>, dated in UTC.
func ObjectKey(owner string, at time.Time, ext string) string {
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s/%s.%s", owner, at.UTC().Format("2006/01/02"), uuid.NewString(), ext)
}

var extByContentType = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/webp":      "webp",
	"image/gif":       "gif",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"audio/mpeg":      "mp3",
	"audio/wav":       "wav",
	"text/plain":      "txt",
	"application/pdf": "pdf",
}

// ExtensionFor picks a file extension from the source URL's path, falling
// back to the content type and then to "bin".
func ExtensionFor(sourcePath, contentType string) string {
	if ext := strings.TrimPrefix(path.Ext(sourcePath), "."); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}

	mediaType := baseMediaType(contentType)
	if ext, ok := extByContentType[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

// ContentTypeFor prefers the declared content type and falls back to one
// derived from the extension.
func ContentTypeFor(declared, ext string) string {
	if mt := baseMediaType(declared); mt != "" && mt != "application/octet-stream" {
		return declared
	}
	for ct, e := range extByContentType {
		if e == ext {
			return ct
		}
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func baseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func metadata(taskType string, at time.Time) map[string]string {
	md := map[string]string{
		MetaGeneratedBy:    GeneratedBy,
		MetaGenerationDate: at.UTC().Format(time.RFC3339),
	}
	if taskType != "" {
		md[MetaTaskType] = taskType
	}
	return md
}
