package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds the number of simultaneous downloads for a
	// single result.
	DefaultConcurrency = 4

	// MaxArtifactSize caps a single download.
	MaxArtifactSize = 256 << 20

	backendName = "artifact"
)

// Persister turns a runner's RawResult into the task output, copying any
// generated files into the object store on the way.
type Persister struct {
	store       ObjectStore
	http        *http.Client
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Persister.
type Option func(*Persister)

// WithConcurrency sets how many URLs of one result are copied at once.
func WithConcurrency(n int) Option {
	return func(p *Persister) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithHTTPClient sets the client used to download upstream artifacts.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Persister) {
		if c != nil {
			p.http = c
		}
	}
}

// WithClock overrides the time source used for keys and metadata.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPersister creates a Persister backed by store.
func NewPersister(store ObjectStore, logger *slog.Logger, opts ...Option) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Persister{
		store:       store,
		http:        &http.Client{Timeout: 60 * time.Second},
		concurrency: DefaultConcurrency,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "artifact_persister")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist assembles the output for task from res.
//
// Text and object results pass through as JSON. A binary result is stored
// once and yields a one-element URL list. A URL list is copied concurrently;
// items that fail are logged and dropped, preserving the order of the rest.
// When nothing could be stored the error matches ErrNoArtifacts and
// domain.ErrBackend.
func (p *Persister) Persist(ctx context.Context, task *domain.Task, res backend.RawResult) (json.RawMessage, error) {
	owner := task.ID.String()
	taskType := string(task.TaskType)

	switch res.Kind {
	case backend.KindText:
		return json.Marshal(res.Text)

	case backend.KindObject:
		if len(res.Object) == 0 {
			return nil, domain.NewBackendError(backendName, fmt.Errorf("%w: empty object result", ErrNoArtifacts))
		}
		return append(json.RawMessage(nil), res.Object...), nil

	case backend.KindBinary:
		if len(res.Data) == 0 {
			return nil, domain.NewBackendError(backendName, fmt.Errorf("%w: empty binary result", ErrNoArtifacts))
		}
		ext := ExtensionFor("", res.ContentType)
		u, err := p.upload(ctx, owner, taskType, res.Data, ContentTypeFor(res.ContentType, ext), ext)
		if err != nil {
			return nil, err
		}
		return json.Marshal([]string{u})

	case backend.KindURLs:
		urls, err := p.PersistAll(ctx, owner, taskType, res.URLs)
		if err != nil {
			return nil, err
		}
		return json.Marshal(urls)

	default:
		return nil, domain.NewBackendError(backendName, fmt.Errorf("unknown result kind %s", res.Kind))
	}
}

// PersistAll copies every source URL concurrently and returns the durable
// URLs of those that succeeded, in input order.
func (p *Persister) PersistAll(ctx context.Context, owner, taskType string, sources []string) ([]string, error) {
	if len(sources) == 0 {
		return nil, domain.NewBackendError(backendName, fmt.Errorf("%w: result contained no urls", ErrNoArtifacts))
	}

	log := logger.FromContextOrDefault(ctx, p.logger)
	results := make([]string, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			u, err := p.PersistURL(gctx, owner, taskType, src)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("failed to persist artifact, dropping it",
					slog.String("owner", owner),
					slog.String("source_url", src),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	persisted := make([]string, 0, len(results))
	for _, u := range results {
		if u != "" {
			persisted = append(persisted, u)
		}
	}
	if len(persisted) == 0 {
		return nil, domain.NewBackendError(backendName,
			fmt.Errorf("%w: all %d downloads failed", ErrNoArtifacts, len(sources)))
	}
	if dropped := len(sources) - len(persisted); dropped > 0 {
		log.Warn("persisted a partial artifact set",
			slog.String("owner", owner),
			slog.Int("persisted", len(persisted)),
			slog.Int("dropped", dropped))
	}
	return persisted, nil
}

// PersistURL downloads source and stores it under owner's key prefix,
// returning the durable URL.
func (p *Persister) PersistURL(ctx context.Context, owner, taskType, source string) (string, error) {
	parsed, err := url.Parse(source)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid artifact url %q", source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to download artifact: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxArtifactSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	if len(data) > MaxArtifactSize {
		return "", fmt.Errorf("artifact exceeds %d bytes", MaxArtifactSize)
	}

	declared := resp.Header.Get("Content-Type")
	ext := ExtensionFor(parsed.Path, declared)
	return p.upload(ctx, owner, taskType, data, ContentTypeFor(declared, ext), ext)
}

func (p *Persister) upload(ctx context.Context, owner, taskType string, data []byte, contentType, ext string) (string, error) {
	at := p.now()
	key := ObjectKey(owner, at, ext)

	u, err := p.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), PutOptions{
		ContentType: contentType,
		Metadata:    metadata(taskType, at),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store artifact %s: %w", key, err)
	}

	logger.FromContextOrDefault(ctx, p.logger).Debug("artifact stored",
		slog.String("key", key),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)))
	return u, nil
}
