package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	calls   int
	model   string
	config  *genai.GenerateContentConfig
	prompt  string
	results []fakeResult
}

type fakeResult struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	r := f.results[min(f.calls, len(f.results))-1]
	return r.resp, r.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}, Role: genai.RoleModel},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func textTask(t *testing.T, input string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.TaskTypeTextGen, json.RawMessage(input), "")
	require.NoError(t, err)
	return task
}

func testRunner(models *fakeModels) *TextRunner {
	return newTextRunner(models, Config{
		Model:      "gemini-test",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTextRunner(t *testing.T) {
	t.Parallel()

	t.Run("returns generated text", func(t *testing.T) {
		models := &fakeModels{results: []fakeResult{{resp: textResponse("A haiku about Go")}}}

		result, err := testRunner(models).Run(context.Background(), textTask(t, `{"prompt":"write a haiku"}`))
		require.NoError(t, err)

		assert.Equal(t, backend.KindText, result.Kind)
		assert.Equal(t, "A haiku about Go", result.Text)
		assert.Equal(t, "gemini-test", models.model)
		assert.Equal(t, "write a haiku", models.prompt)
		assert.Equal(t, 1, models.calls)
	})

	t.Run("forwards generation options", func(t *testing.T) {
		models := &fakeModels{results: []fakeResult{{resp: textResponse("ok")}}}
		input := `{"prompt":"p","model":"gemini-pro","systemInstruction":"be brief","temperature":0.2,"maxOutputTokens":64}`

		_, err := testRunner(models).Run(context.Background(), textTask(t, input))
		require.NoError(t, err)

		assert.Equal(t, "gemini-pro", models.model)
		require.NotNil(t, models.config.SystemInstruction)
		assert.Equal(t, "be brief", models.config.SystemInstruction.Parts[0].Text)
		require.NotNil(t, models.config.Temperature)
		assert.InDelta(t, 0.2, *models.config.Temperature, 1e-6)
		assert.Equal(t, int32(64), models.config.MaxOutputTokens)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		models := &fakeModels{results: []fakeResult{
			{err: genai.APIError{Code: 503, Message: "unavailable"}},
			{err: genai.APIError{Code: 429, Message: "slow down"}},
			{resp: textResponse("finally")},
		}}

		result, err := testRunner(models).Run(context.Background(), textTask(t, `{"prompt":"p"}`))
		require.NoError(t, err)
		assert.Equal(t, "finally", result.Text)
		assert.Equal(t, 3, models.calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		models := &fakeModels{results: []fakeResult{{err: genai.APIError{Code: 500, Message: "boom"}}}}

		_, err := testRunner(models).Run(context.Background(), textTask(t, `{"prompt":"p"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrBackend)
		assert.Contains(t, err.Error(), "boom")
		assert.Equal(t, 3, models.calls)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		models := &fakeModels{results: []fakeResult{{err: genai.APIError{Code: 400, Message: "bad request"}}}}

		_, err := testRunner(models).Run(context.Background(), textTask(t, `{"prompt":"p"}`))
		require.Error(t, err)
		assert.Equal(t, 1, models.calls)

		var be *domain.BackendError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "gemini", be.Backend)
	})

	t.Run("safety block is permanent", func(t *testing.T) {
		models := &fakeModels{results: []fakeResult{{resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		}}}}

		_, err := testRunner(models).Run(context.Background(), textTask(t, `{"prompt":"p"}`))
		assert.ErrorIs(t, err, ErrContentBlocked)
		assert.Equal(t, 1, models.calls)
	})

	t.Run("empty response is a failure", func(t *testing.T) {
		models := &fakeModels{results: []fakeResult{{resp: &genai.GenerateContentResponse{}}}}

		_, err := testRunner(models).Run(context.Background(), textTask(t, `{"prompt":"p"}`))
		assert.ErrorIs(t, err, ErrEmptyResponse)
		assert.ErrorIs(t, err, domain.ErrBackend)
	})

	t.Run("invalid input never reaches the API", func(t *testing.T) {
		models := &fakeModels{results: []fakeResult{{resp: textResponse("unused")}}}
		task := &domain.Task{TaskType: domain.TaskTypeTextGen, Input: json.RawMessage(`{"prompt":""}`)}

		_, err := testRunner(models).Run(context.Background(), task)
		assert.ErrorIs(t, err, domain.ErrBackend)
		assert.Equal(t, 0, models.calls)
	})
}

func TestNewTextRunnerRequiresAPIKey(t *testing.T) {
	_, err := NewTextRunner(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", genai.APIError{Code: 429}, true},
		{"server error", genai.APIError{Code: 502}, true},
		{"bad request", genai.APIError{Code: 400}, false},
		{"canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}
