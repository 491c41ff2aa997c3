// Package openai runs chat tasks against the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

const (
	backendName = "openai"

	// DefaultBaseURL is the public OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
	defaultTopP        = 1.0
)

// Config configures the chat runner.
type Config struct {
	APIKey  string
	BaseURL string
	// Model is used when the task does not name one.
	Model string
}

// ChatRunner implements backend.Runner for chat tasks.
type ChatRunner struct {
	client *goopenai.Client
	model  string
	logger *slog.Logger
}

var _ backend.Runner = (*ChatRunner)(nil)

// NewChatRunner creates a chat runner. A nil httpClient gets a 60s timeout
// client.
func NewChatRunner(cfg Config, httpClient *http.Client, logger *slog.Logger) (*ChatRunner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = httpClient

	model := cfg.Model
	if model == "" {
		model = goopenai.GPT4oMini
	}

	return &ChatRunner{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger.With(slog.String("component", "openai_chat_runner")),
	}, nil
}

// Run implements backend.Runner. The result is the content of the first
// choice.
func (r *ChatRunner) Run(ctx context.Context, task *domain.Task) (backend.RawResult, error) {
	decoded, err := domain.DecodeInput(domain.TaskTypeChat, task.Input)
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	in := decoded.(domain.ChatInput)

	req := r.buildRequest(in)
	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, apiError(err))
	}
	if len(resp.Choices) == 0 {
		return backend.RawResult{}, domain.NewBackendError(backendName, errors.New("response contained no choices"))
	}

	logger.FromContextOrDefault(ctx, r.logger).Debug("chat completion finished",
		slog.String("task_id", task.ID.String()),
		slog.String("model", req.Model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)))

	return backend.TextResult(resp.Choices[0].Message.Content), nil
}

func (r *ChatRunner) buildRequest(in domain.ChatInput) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:       in.Model,
		Messages:    make([]goopenai.ChatCompletionMessage, 0, len(in.Messages)),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		TopP:        defaultTopP,
	}
	for _, m := range in.Messages {
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if req.Model == "" {
		req.Model = r.model
	}
	if in.Temperature != nil {
		req.Temperature = float32(*in.Temperature)
	}
	if in.MaxTokens != nil {
		req.MaxTokens = *in.MaxTokens
	}
	if in.TopP != nil {
		req.TopP = float32(*in.TopP)
	}
	if in.FrequencyPenalty != nil {
		req.FrequencyPenalty = float32(*in.FrequencyPenalty)
	}
	if in.PresencePenalty != nil {
		req.PresencePenalty = float32(*in.PresencePenalty)
	}
	return req
}

// apiError flattens the client's error types into a short upstream message.
func apiError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return fmt.Errorf("api returned %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("api returned %d", reqErr.HTTPStatusCode)
	}
	return err
}
