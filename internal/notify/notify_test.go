package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFunc func(ctx context.Context, task *domain.Task) error

func (f webhookFunc) Send(ctx context.Context, task *domain.Task) error { return f(ctx, task) }

func succeededTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.TaskTypeImageGen, json.RawMessage(`{"prompt":"a cat"}`), "https://example.com/hook")
	require.NoError(t, err)
	task.Status = domain.TaskStatusSucceeded
	task.Output = json.RawMessage(`["https://cdn.example.com/a.png"]`)
	return task
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	t.Run("publishes the snapshot with attributes", func(t *testing.T) {
		var got notify.Message
		pub := notify.PublisherFunc(func(_ context.Context, msg notify.Message) error {
			got = msg
			return nil
		})
		n := notify.NewNotifier(pub, webhookFunc(func(context.Context, *domain.Task) error { return nil }), discard())

		task := succeededTask(t)
		require.NoError(t, n.Notify(context.Background(), task))

		assert.Equal(t, map[string]string{"taskType": "image-gen", "status": "succeeded"}, got.Attributes)
		var snapshot domain.Task
		require.NoError(t, json.Unmarshal(got.Body, &snapshot))
		assert.Equal(t, task.ID, snapshot.ID)
		assert.JSONEq(t, string(task.Output), string(snapshot.Output))
	})

	t.Run("a slow webhook does not block the publish", func(t *testing.T) {
		published := make(chan struct{})
		pub := notify.PublisherFunc(func(context.Context, notify.Message) error {
			close(published)
			return nil
		})
		hook := webhookFunc(func(context.Context, *domain.Task) error {
			select {
			case <-published:
				return nil
			case <-time.After(time.Second):
				return errors.New("publish never happened while webhook was running")
			}
		})

		n := notify.NewNotifier(pub, hook, discard())
		assert.NoError(t, n.Notify(context.Background(), succeededTask(t)))
	})

	t.Run("both failures are reported", func(t *testing.T) {
		pub := notify.PublisherFunc(func(context.Context, notify.Message) error { return errors.New("broker down") })
		hook := webhookFunc(func(context.Context, *domain.Task) error { return errors.New("503") })

		err := notify.NewNotifier(pub, hook, discard()).Notify(context.Background(), succeededTask(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotification)
		assert.Contains(t, err.Error(), "broker down")
		assert.Contains(t, err.Error(), "503")

		var ne *domain.NotificationError
		require.True(t, errors.As(err, &ne))
	})

	t.Run("a webhook failure still publishes", func(t *testing.T) {
		publishes := 0
		pub := notify.PublisherFunc(func(context.Context, notify.Message) error {
			publishes++
			return nil
		})
		hook := webhookFunc(func(context.Context, *domain.Task) error { return errors.New("refused") })

		err := notify.NewNotifier(pub, hook, discard()).Notify(context.Background(), succeededTask(t))
		require.Error(t, err)
		assert.Equal(t, 1, publishes)

		var ne *domain.NotificationError
		require.True(t, errors.As(err, &ne))
		assert.Equal(t, notify.ChannelWebhook, ne.Channel)
	})

	t.Run("nil publisher falls back to nop", func(t *testing.T) {
		n := notify.NewNotifier(nil, nil, discard())
		assert.NoError(t, n.Notify(context.Background(), succeededTask(t)))
	})
}
