package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// JobStore keeps job records in memory. Expired records are treated as
// absent.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.JobRecord
	now  func() int64
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore returns an empty store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*domain.JobRecord),
		now:  func() int64 { return domain.NowMillis() / 1000 },
	}
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*domain.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.live(id)
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *JobStore) PutJob(ctx context.Context, job *domain.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job == nil || job.ID == "" {
		return store.NewStoreError("job", "put", "job ID is required", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *JobStore) UpdateJobStatus(ctx context.Context, id string, status domain.TaskStatus, output json.RawMessage, errMsg string) error {
	return s.update(ctx, id, func(job *domain.JobRecord) {
		job.Status = status
		if output != nil {
			job.Output = append(json.RawMessage(nil), output...)
		}
		if errMsg != "" {
			job.Error = errMsg
		}
	})
}

func (s *JobStore) UpdateJobImages(ctx context.Context, id string, images []string) error {
	return s.update(ctx, id, func(job *domain.JobRecord) {
		job.Images = append([]string(nil), images...)
	})
}

func (s *JobStore) update(ctx context.Context, id string, mutate func(*domain.JobRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.live(id)
	if !ok {
		return store.ErrJobNotFound
	}
	mutate(job)
	return nil
}

// live must be called with the lock held.
func (s *JobStore) live(id string) (*domain.JobRecord, bool) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	if job.TTL > 0 && job.TTL <= s.now() {
		return nil, false
	}
	return job, true
}
