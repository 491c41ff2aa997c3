// Package elevenlabs runs speech-gen tasks against the ElevenLabs
// text-to-speech API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

const (
	backendName = "elevenlabs"

	DefaultBaseURL = "https://api.elevenlabs.io/v1"
	DefaultVoiceID = "pNInz6obpgDQGcFmaJgB"
	DefaultModelID = "eleven_multilingual_v2"

	audioContentType = "audio/mpeg"
	maxAudioBytes    = 50 << 20
)

// Config configures the speech runner.
type Config struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
}

type voiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
}

type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// SpeechRunner implements backend.Runner for speech-gen tasks. It returns
// the MP3 body as a binary result.
type SpeechRunner struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ backend.Runner = (*SpeechRunner)(nil)

func NewSpeechRunner(cfg Config, httpClient *http.Client, logger *slog.Logger) (*SpeechRunner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeechRunner{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With(slog.String("component", "elevenlabs_speech_runner")),
	}, nil
}

// Run implements backend.Runner.
func (r *SpeechRunner) Run(ctx context.Context, task *domain.Task) (backend.RawResult, error) {
	decoded, err := domain.DecodeInput(domain.TaskTypeSpeechGen, task.Input)
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	in := decoded.(domain.SpeechGenInput)

	voiceID := in.VoiceID
	if voiceID == "" {
		voiceID = r.cfg.VoiceID
	}
	req := speechRequest{Text: in.Text, ModelID: in.ModelID}
	if req.ModelID == "" {
		req.ModelID = r.cfg.ModelID
	}
	if in.Stability != nil || in.SimilarityBoost != nil {
		req.VoiceSettings = &voiceSettings{Stability: in.Stability, SimilarityBoost: in.SimilarityBoost}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, fmt.Errorf("failed to encode request: %w", err))
	}

	endpoint := r.cfg.BaseURL + "/text-to-speech/" + url.PathEscape(voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", audioContentType)
	httpReq.Header.Set("xi-api-key", r.cfg.APIKey)

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return backend.RawResult{}, domain.NewBackendError(backendName, apiError(resp.StatusCode, body))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return backend.RawResult{}, domain.NewBackendError(backendName, fmt.Errorf("failed to read audio: %w", err))
	}
	if len(audio) == 0 {
		return backend.RawResult{}, domain.NewBackendError(backendName, errors.New("empty audio response"))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = audioContentType
	}

	logger.FromContextOrDefault(ctx, r.logger).Debug("speech generated",
		slog.String("task_id", task.ID.String()),
		slog.String("voice_id", voiceID),
		slog.Int("bytes", len(audio)))

	return backend.BinaryResult(audio, contentType), nil
}

// apiError extracts detail.message from an ElevenLabs error body when
// present.
func apiError(status int, body []byte) error {
	var er struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &er); err == nil && er.Detail.Message != "" {
		return fmt.Errorf("api returned %d: %s", status, er.Detail.Message)
	}
	return fmt.Errorf("api returned %d", status)
}
