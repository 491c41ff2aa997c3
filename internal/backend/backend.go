// Package backend defines the contract between the dispatcher and the
// upstream generation APIs, and the registry that routes task types to them.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/phrazzld/genflow/internal/domain"
)

// Kind tags the shape of a RawResult.
type Kind int

const (
	KindText Kind = iota + 1
	KindURLs
	KindBinary
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindURLs:
		return "urls"
	case KindBinary:
		return "binary"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// RawResult is what a runner produces before artifacts are persisted.
// Exactly one payload field is meaningful, selected by Kind.
type RawResult struct {
	Kind        Kind
	Text        string
	URLs        []string
	Data        []byte
	ContentType string
	Object      json.RawMessage
}

// TextResult wraps generated text.
func TextResult(s string) RawResult {
	return RawResult{Kind: KindText, Text: s}
}

// URLsResult wraps a list of remote artifact URLs.
func URLsResult(urls ...string) RawResult {
	return RawResult{Kind: KindURLs, URLs: urls}
}

// BinaryResult wraps a generated binary body such as audio.
func BinaryResult(data []byte, contentType string) RawResult {
	return RawResult{Kind: KindBinary, Data: data, ContentType: contentType}
}

// ObjectResult passes upstream JSON through untouched.
func ObjectResult(raw json.RawMessage) RawResult {
	return RawResult{Kind: KindObject, Object: raw}
}

// Runner invokes one upstream API for a task. Implementations wrap every
// failure in a *domain.BackendError and never return a partial result as a
// success.
type Runner interface {
	Run(ctx context.Context, task *domain.Task) (RawResult, error)
}

// RunnerFunc adapts an ordinary function to the Runner interface.
type RunnerFunc func(ctx context.Context, task *domain.Task) (RawResult, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, task *domain.Task) (RawResult, error) {
	return f(ctx, task)
}

// Registry maps task types to runners. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	runners map[domain.TaskType]Runner
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[domain.TaskType]Runner)}
}

// Register binds a runner to a task type, replacing any previous binding.
func (r *Registry) Register(taskType domain.TaskType, runner Runner) error {
	if !taskType.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedTaskType, taskType)
	}
	if runner == nil {
		return fmt.Errorf("runner for %s cannot be nil", taskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[taskType] = runner
	return nil
}

// Lookup returns the runner for taskType or domain.ErrUnsupportedTaskType.
func (r *Registry) Lookup(taskType domain.TaskType) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, ok := r.runners[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedTaskType, taskType)
	}
	return runner, nil
}

// Types lists the registered task types in sorted order.
func (r *Registry) Types() []domain.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.TaskType, 0, len(r.runners))
	for t := range r.runners {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
