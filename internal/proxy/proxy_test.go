package proxy_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/platform/memory"
	"github.com/phrazzld/genflow/internal/platform/replicate"
	"github.com/phrazzld/genflow/internal/proxy"
	"github.com/phrazzld/genflow/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAPI replays a fixed sequence of predictions, repeating the last.
type scriptedAPI struct {
	mu       sync.Mutex
	script   []*replicate.Prediction
	calls    int
	CreateFn func(req replicate.PredictionRequest) (*replicate.Prediction, error)
}

func (a *scriptedAPI) GetPrediction(context.Context, string, string) (*replicate.Prediction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	if i >= len(a.script) {
		i = len(a.script) - 1
	}
	a.calls++
	return a.script[i], nil
}

func (a *scriptedAPI) CreatePrediction(_ context.Context, req replicate.PredictionRequest, _ string) (*replicate.Prediction, error) {
	return a.CreateFn(req)
}

// countingJobs counts status updates on top of the memory store.
type countingJobs struct {
	*memory.JobStore
	statusUpdates atomic.Int32
}

func (c *countingJobs) UpdateJobStatus(ctx context.Context, id string, status domain.TaskStatus, output json.RawMessage, errMsg string) error {
	c.statusUpdates.Add(1)
	return c.JobStore.UpdateJobStatus(ctx, id, status, output, errMsg)
}

// countingPersister maps every source to a durable URL after Delay.
type countingPersister struct {
	calls     atomic.Int32
	Delay     time.Duration
	PersistFn func(source string) (string, error)
}

func (p *countingPersister) PersistURL(ctx context.Context, owner, _ string, source string) (string, error) {
	p.calls.Add(1)
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.PersistFn != nil {
		return p.PersistFn(source)
	}
	return fmt.Sprintf("https://bucket.example.com/%s/%s", owner, source[len(source)-5:]), nil
}

func prediction(id, status, output string) *replicate.Prediction {
	p := &replicate.Prediction{ID: id, Status: status}
	if output != "" {
		p.Output = json.RawMessage(output)
	}
	return p
}

func fastPoller(api proxy.PredictionGetter, jobs *countingJobs, persister proxy.URLPersister) *proxy.Poller {
	return proxy.NewPoller(api, jobs, persister, proxy.PollerConfig{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	}, logger.DiscardLogger())
}

func TestPoller(t *testing.T) {
	t.Parallel()

	t.Run("starting, starting, succeeded updates once and persists each url", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{
			prediction("p1", "starting", ""),
			prediction("p1", "starting", ""),
			prediction("p1", "succeeded", `["https://r.example.com/a.png","https://r.example.com/b.png"]`),
		}}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		require.NoError(t, jobs.PutJob(context.Background(), domain.NewJobRecord("p1", domain.TaskStatusStarting, nil, nil)))
		persister := &countingPersister{}

		err := fastPoller(api, jobs, persister).Poll(context.Background(), "p1", domain.TaskStatusStarting)
		require.NoError(t, err)

		assert.Equal(t, int32(1), jobs.statusUpdates.Load())
		assert.Equal(t, int32(2), persister.calls.Load())

		job, err := jobs.GetJob(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusSucceeded, job.Status)
		assert.Equal(t, []string{
			"https://bucket.example.com/p1/a.png",
			"https://bucket.example.com/p1/b.png",
		}, job.Images)
	})

	t.Run("failed prediction records the error and stops", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{
			{ID: "p2", Status: "failed", Error: json.RawMessage(`"NSFW content detected"`)},
		}}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		require.NoError(t, jobs.PutJob(context.Background(), domain.NewJobRecord("p2", domain.TaskStatusStarting, nil, nil)))
		persister := &countingPersister{}

		require.NoError(t, fastPoller(api, jobs, persister).Poll(context.Background(), "p2", domain.TaskStatusStarting))

		job, err := jobs.GetJob(context.Background(), "p2")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, job.Status)
		assert.Equal(t, "NSFW content detected", job.Error)
		assert.Zero(t, persister.calls.Load())
	})

	t.Run("each status change is recorded once", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{
			prediction("p3", "processing", ""),
			prediction("p3", "processing", ""),
			prediction("p3", "succeeded", `["https://r.example.com/a.png"]`),
		}}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		require.NoError(t, jobs.PutJob(context.Background(), domain.NewJobRecord("p3", domain.TaskStatusStarting, nil, nil)))

		require.NoError(t, fastPoller(api, jobs, &countingPersister{}).Poll(context.Background(), "p3", domain.TaskStatusStarting))
		assert.Equal(t, int32(2), jobs.statusUpdates.Load())
	})

	t.Run("timeout leaves the last status and returns nil", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{prediction("p4", "starting", "")}}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		require.NoError(t, jobs.PutJob(context.Background(), domain.NewJobRecord("p4", domain.TaskStatusStarting, nil, nil)))
		poller := proxy.NewPoller(api, jobs, &countingPersister{}, proxy.PollerConfig{
			Interval: 5 * time.Millisecond,
			Timeout:  30 * time.Millisecond,
		}, logger.DiscardLogger())

		require.NoError(t, poller.Poll(context.Background(), "p4", domain.TaskStatusStarting))
		assert.Zero(t, jobs.statusUpdates.Load())
	})

	t.Run("failed items are dropped from the images", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{
			prediction("p5", "succeeded", `["https://r.example.com/a.png","https://r.example.com/x.png"]`),
		}}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		require.NoError(t, jobs.PutJob(context.Background(), domain.NewJobRecord("p5", domain.TaskStatusStarting, nil, nil)))
		persister := &countingPersister{PersistFn: func(source string) (string, error) {
			if source == "https://r.example.com/x.png" {
				return "", errors.New("404")
			}
			return "https://bucket.example.com/a.png", nil
		}}

		require.NoError(t, fastPoller(api, jobs, persister).Poll(context.Background(), "p5", domain.TaskStatusStarting))

		job, err := jobs.GetJob(context.Background(), "p5")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://bucket.example.com/a.png"}, job.Images)
	})

	t.Run("first check happens without waiting an interval", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{
			prediction("p9", "succeeded", `["https://r.example.com/a.png"]`),
		}}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		require.NoError(t, jobs.PutJob(context.Background(), domain.NewJobRecord("p9", domain.TaskStatusStarting, nil, nil)))
		poller := proxy.NewPoller(api, jobs, &countingPersister{}, proxy.PollerConfig{
			Interval: time.Hour,
			Timeout:  2 * time.Hour,
		}, logger.DiscardLogger())

		done := make(chan error, 1)
		go func() { done <- poller.Poll(context.Background(), "p9", domain.TaskStatusStarting) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("poll waited for the first tick")
		}

		job, err := jobs.GetJob(context.Background(), "p9")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusSucceeded, job.Status)
		assert.Len(t, job.Images, 1)
	})

	t.Run("output is persisted even when success lands near the timeout", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{
			prediction("p10", "starting", ""),
			prediction("p10", "succeeded", `["https://r.example.com/a.png"]`),
		}}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		require.NoError(t, jobs.PutJob(context.Background(), domain.NewJobRecord("p10", domain.TaskStatusStarting, nil, nil)))
		poller := proxy.NewPoller(api, jobs, &countingPersister{Delay: 150 * time.Millisecond}, proxy.PollerConfig{
			Interval: 20 * time.Millisecond,
			Timeout:  60 * time.Millisecond,
		}, logger.DiscardLogger())

		require.NoError(t, poller.Poll(context.Background(), "p10", domain.TaskStatusStarting))

		job, err := jobs.GetJob(context.Background(), "p10")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusSucceeded, job.Status)
		assert.Equal(t, []string{"https://bucket.example.com/p10/a.png"}, job.Images)
	})

	t.Run("cancelled context is returned", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{prediction("p6", "starting", "")}}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := fastPoller(api, jobs, &countingPersister{}).Poll(ctx, "p6", domain.TaskStatusStarting)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestService(t *testing.T) {
	t.Parallel()

	t.Run("start merges defaults, records the job and polls it", func(t *testing.T) {
		var sent replicate.PredictionRequest
		api := &scriptedAPI{
			script: []*replicate.Prediction{
				prediction("p7", "succeeded", `["https://r.example.com/a.png"]`),
			},
			CreateFn: func(req replicate.PredictionRequest) (*replicate.Prediction, error) {
				sent = req
				return prediction("p7", "starting", ""), nil
			},
		}
		jobs := &countingJobs{JobStore: memory.NewJobStore()}
		runner := worker.NewRunner(worker.Config{WorkerCount: 1, QueueSize: 4}, logger.DiscardLogger())
		require.NoError(t, runner.Start(context.Background()))

		svc := proxy.NewService(api, jobs, fastPoller(api, jobs, &countingPersister{}), runner, "", logger.DiscardLogger())

		pred, err := svc.Start(context.Background(), proxy.StartRequest{
			Input: map[string]any{"prompt": "a cat", "num_outputs": 2},
		})
		require.NoError(t, err)
		assert.Equal(t, "p7", pred.ID)

		assert.Equal(t, replicate.DefaultImageVersion, sent.Version)
		assert.Equal(t, "a cat", sent.Input["prompt"])
		assert.Equal(t, 2, sent.Input["num_outputs"])
		assert.Equal(t, "dev", sent.Input["model"])

		require.NoError(t, runner.Stop())

		job, err := jobs.GetJob(context.Background(), "p7")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusSucceeded, job.Status)
		assert.Len(t, job.Images, 1)
	})

	t.Run("upstream failure is a backend error", func(t *testing.T) {
		api := &scriptedAPI{CreateFn: func(replicate.PredictionRequest) (*replicate.Prediction, error) {
			return nil, errors.New("invalid version")
		}}
		svc := proxy.NewService(api, memory.NewJobStore(), nil, nil, "", logger.DiscardLogger())

		_, err := svc.Start(context.Background(), proxy.StartRequest{Input: map[string]any{"prompt": "x"}})
		assert.ErrorIs(t, err, domain.ErrBackend)
	})

	t.Run("status records unknown predictions", func(t *testing.T) {
		api := &scriptedAPI{script: []*replicate.Prediction{
			prediction("p8", "processing", ""),
		}}
		jobs := memory.NewJobStore()
		svc := proxy.NewService(api, jobs, nil, nil, "", logger.DiscardLogger())

		pred, err := svc.Status(context.Background(), "p8", "")
		require.NoError(t, err)
		assert.Equal(t, "processing", pred.Status)

		job, err := jobs.GetJob(context.Background(), "p8")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, job.Status)
	})

	t.Run("jobs with images or past starting are not polled", func(t *testing.T) {
		var submitted atomic.Int32
		submitter := submitterFunc(func(worker.Job) error {
			submitted.Add(1)
			return nil
		})
		svc := proxy.NewService(&scriptedAPI{}, memory.NewJobStore(), nil, submitter, "", logger.DiscardLogger())

		withImages := domain.NewJobRecord("a", domain.TaskStatusStarting, nil, nil)
		withImages.Images = []string{"https://bucket.example.com/a.png"}
		processing := domain.NewJobRecord("b", domain.TaskStatusProcessing, nil, nil)
		starting := domain.NewJobRecord("c", domain.TaskStatusStarting, nil, nil)

		for _, job := range []*domain.JobRecord{withImages, processing, starting} {
			require.NoError(t, svc.OnJobInserted(context.Background(), job))
		}
		assert.Equal(t, int32(1), submitted.Load())
	})
}

type submitterFunc func(job worker.Job) error

func (f submitterFunc) Submit(_ context.Context, job worker.Job) error { return f(job) }
