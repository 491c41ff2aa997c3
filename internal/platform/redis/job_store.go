// Package redis stores proxy job records in Redis as JSON values with an
// expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "job:"

	// maxWatchRetries bounds optimistic-lock retries when another writer
	// touches the same key between WATCH and EXEC.
	maxWatchRetries = 5
)

// JobStore implements store.JobStore on Redis.
type JobStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates a job store. ttl is applied to records that do not
// carry their own expiry; zero means domain.JobRetention.
func NewJobStore(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *JobStore {
	if ttl <= 0 {
		ttl = domain.JobRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStore{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

func jobKey(id string) string {
	return keyPrefix + id
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*domain.JobRecord, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrJobNotFound
		}
		return nil, store.NewStoreError("job", "get", "failed to get job", err)
	}

	var job domain.JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, store.NewStoreError("job", "get", "failed to decode job", err)
	}
	return &job, nil
}

func (s *JobStore) PutJob(ctx context.Context, job *domain.JobRecord) error {
	if job == nil || job.ID == "" {
		return store.NewStoreError("job", "put", "job ID is required", store.ErrInvalidEntity)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return store.NewStoreError("job", "put", "failed to encode job", err)
	}

	if err := s.client.Set(ctx, jobKey(job.ID), data, s.expiry(job)).Err(); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		return store.NewStoreError("job", "put", "failed to save job", err)
	}
	return nil
}

func (s *JobStore) UpdateJobStatus(ctx context.Context, id string, status domain.TaskStatus, output json.RawMessage, errMsg string) error {
	return s.update(ctx, id, "update_status", func(job *domain.JobRecord) {
		job.Status = status
		if output != nil {
			job.Output = output
		}
		if errMsg != "" {
			job.Error = errMsg
		}
	})
}

func (s *JobStore) UpdateJobImages(ctx context.Context, id string, images []string) error {
	return s.update(ctx, id, "update_images", func(job *domain.JobRecord) {
		job.Images = images
	})
}

// update applies mutate as a read-modify-write guarded by WATCH. The key's
// remaining TTL is kept.
func (s *JobStore) update(ctx context.Context, id, op string, mutate func(*domain.JobRecord)) error {
	key := jobKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}

		var job domain.JobRecord
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to decode job: %w", err)
		}
		mutate(&job)

		updated, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return store.ErrJobNotFound
		default:
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to update job",
				slog.String("job_id", id),
				slog.String("operation", op),
				slog.String("error", err.Error()))
			return store.NewStoreError("job", op, "failed to update job", err)
		}
	}

	return store.NewStoreError("job", op, "too many concurrent updates", redis.TxFailedErr)
}

func (s *JobStore) expiry(job *domain.JobRecord) time.Duration {
	if job.TTL > 0 {
		if d := time.Until(time.Unix(job.TTL, 0)); d > 0 {
			return d
		}
	}
	return s.ttl
}
