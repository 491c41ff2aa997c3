package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/sethvargo/go-retry"
)

// Webhook delivery defaults.
const (
	DefaultWebhookAttempts       = 3
	DefaultWebhookTimeout        = 5 * time.Second
	DefaultWebhookInitialBackoff = time.Second
)

// timestampLayout is RFC 3339 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// WebhookPayload is the JSON body POSTed to a task's webhook URL.
type WebhookPayload struct {
	TaskID    string            `json:"taskId"`
	Status    domain.TaskStatus `json:"status"`
	TaskType  domain.TaskType   `json:"taskType"`
	Output    json.RawMessage   `json:"output,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// NewWebhookPayload builds the payload for task stamped with at.
func NewWebhookPayload(task *domain.Task, at time.Time) WebhookPayload {
	return WebhookPayload{
		TaskID:    task.ID.String(),
		Status:    task.Status,
		TaskType:  task.TaskType,
		Output:    task.Output,
		Error:     task.Error,
		Timestamp: at.UTC().Format(timestampLayout),
	}
}

// WebhookConfig controls delivery. Zero values use the defaults.
type WebhookConfig struct {
	MaxAttempts    int
	Timeout        time.Duration
	InitialBackoff time.Duration
}

func (c WebhookConfig) withDefaults() WebhookConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultWebhookAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultWebhookTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultWebhookInitialBackoff
	}
	return c
}

// WebhookSender POSTs task snapshots to webhook URLs, retrying failed
// attempts with exponential backoff.
type WebhookSender struct {
	client *http.Client
	cfg    WebhookConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewWebhookSender creates a sender. A nil client uses http.DefaultClient;
// the per-attempt timeout is applied through the request context.
func NewWebhookSender(client *http.Client, cfg WebhookConfig, logger *slog.Logger) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		client: client,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: logger.With(slog.String("component", "webhook_sender")),
	}
}

// Send delivers task to its webhook URL. An empty URL is a no-op. A non-2xx
// response counts as a failed attempt; the last attempt's error is returned.
func (s *WebhookSender) Send(ctx context.Context, task *domain.Task) error {
	if task.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(NewWebhookPayload(task, s.now()))
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", task.ID.String()))

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewExponential(s.cfg.InitialBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := s.post(ctx, task.WebhookURL, body); err != nil {
			log.Warn("webhook attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", s.cfg.MaxAttempts),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Error("webhook delivery failed", slog.Int("attempts", attempt), slog.String("error", err.Error()))
		return fmt.Errorf("webhook delivery failed after %d attempts: %w", attempt, err)
	}

	log.Debug("webhook delivered", slog.Int("attempts", attempt))
	return nil
}

func (s *WebhookSender) post(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
