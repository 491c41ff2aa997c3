// Package notify tells external listeners that a task reached a terminal
// state. Every notification goes to the completion topic and, when the task
// names one, to its webhook URL.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/sourcegraph/conc"
)

// Channel names used in NotificationError.
const (
	ChannelPubSub  = "pubsub"
	ChannelWebhook = "webhook"
)

// Message is one pub/sub publication.
type Message struct {
	Body       []byte
	Attributes map[string]string
}

// Publisher sends a message to the completion topic.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// NopPublisher discards every message. It is used when no pub/sub driver is
// configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Message) error { return nil }

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, msg Message) error { return f(ctx, msg) }

// TaskMessage builds the completion message for task: the full snapshot as
// JSON, with the task type and status as attributes.
func TaskMessage(task *domain.Task) (Message, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode task snapshot: %w", err)
	}
	return Message{
		Body: body,
		Attributes: map[string]string{
			"taskType": string(task.TaskType),
			"status":   string(task.Status),
		},
	}, nil
}

// Webhook delivers a task to its webhook URL.
type Webhook interface {
	Send(ctx context.Context, task *domain.Task) error
}

// Notifier fans a task snapshot out to the topic and the webhook.
type Notifier struct {
	publisher Publisher
	webhook   Webhook
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. A nil publisher is replaced with
// NopPublisher.
func NewNotifier(publisher Publisher, webhook Webhook, logger *slog.Logger) *Notifier {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		publisher: publisher,
		webhook:   webhook,
		logger:    logger.With(slog.String("component", "notifier")),
	}
}

// Notify publishes task and delivers its webhook concurrently. Neither
// channel waits on the other. Failures are joined, each wrapped in a
// *domain.NotificationError.
func (n *Notifier) Notify(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, n.logger).With(
		slog.String("task_id", task.ID.String()),
		slog.String("status", string(task.Status)))

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(channel string, err error) {
		log.Error("notification failed", slog.String("channel", channel), slog.String("error", err.Error()))
		mu.Lock()
		errs = append(errs, &domain.NotificationError{Channel: channel, Err: err})
		mu.Unlock()
	}

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		msg, err := TaskMessage(task)
		if err == nil {
			err = n.publisher.Publish(ctx, msg)
		}
		if err != nil {
			record(ChannelPubSub, err)
		}
	})
	if n.webhook != nil {
		wg.Go(func() {
			if err := n.webhook.Send(ctx, task); err != nil {
				record(ChannelWebhook, err)
			}
		})
	}
	wg.Wait()

	if len(errs) == 0 {
		log.Debug("notifications delivered")
	}
	return errors.Join(errs...)
}
