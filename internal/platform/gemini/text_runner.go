package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

const (
	backendName = "gemini"

	// DefaultModel is used when neither the config nor the task names a model.
	DefaultModel = "gemini-2.0-flash"

	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

var (
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("response contained no text")

	// ErrContentBlocked is returned when the prompt or the response was
	// blocked by safety filters.
	ErrContentBlocked = errors.New("content blocked by safety filters")
)

// Config configures the text runner.
type Config struct {
	APIKey string
	// Model is used when the task does not name one.
	Model string
	// MaxRetries is the number of retries after the first attempt. Zero uses
	// the default of 3.
	MaxRetries int
	// RetryDelay is the base of the exponential backoff between attempts.
	RetryDelay time.Duration
	// BaseURL overrides the API endpoint. Empty uses the public endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// contentGenerator is the part of the genai client the runner needs.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// TextRunner implements backend.Runner for text-gen tasks.
type TextRunner struct {
	models contentGenerator
	cfg    Config
	logger *slog.Logger
}

var _ backend.Runner = (*TextRunner)(nil)

// NewTextRunner creates a Gemini client and wraps it in a runner.
func NewTextRunner(ctx context.Context, cfg Config, logger *slog.Logger) (*TextRunner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newTextRunner(client.Models, cfg, logger), nil
}

func newTextRunner(models contentGenerator, cfg Config, logger *slog.Logger) *TextRunner {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TextRunner{
		models: models,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "gemini_text_runner")),
	}
}

// Run implements backend.Runner.
func (r *TextRunner) Run(ctx context.Context, task *domain.Task) (backend.RawResult, error) {
	decoded, err := domain.DecodeInput(domain.TaskTypeTextGen, task.Input)
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	in := decoded.(domain.TextGenInput)

	model := in.Model
	if model == "" {
		model = r.cfg.Model
	}

	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("task_id", task.ID.String()),
		slog.String("model", model))

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(r.cfg.MaxRetries), retry.NewExponential(r.cfg.RetryDelay))

	text, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (string, error) {
		attempt++
		resp, err := r.models.GenerateContent(ctx, model, genai.Text(in.Prompt), generationConfig(in))
		if err != nil {
			if isTransient(err) {
				log.Warn("transient gemini error, retrying",
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
				return "", retry.RetryableError(err)
			}
			return "", err
		}
		return extractText(resp)
	})
	if err != nil {
		log.Error("text generation failed",
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()))
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}

	log.Debug("text generation finished", slog.Int("attempts", attempt), slog.Int("length", len(text)))
	return backend.TextResult(text), nil
}

func generationConfig(in domain.TextGenInput) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if in.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(in.SystemInstruction, genai.RoleUser)
	}
	if in.Temperature != nil {
		t := *in.Temperature
		cfg.Temperature = &t
	}
	if in.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *in.MaxOutputTokens
	}
	return cfg
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// isTransient reports whether err is worth another attempt: rate limiting,
// server errors and network failures.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Code >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
