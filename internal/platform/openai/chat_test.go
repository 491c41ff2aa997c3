package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatTask(t *testing.T, input string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.TaskTypeChat, json.RawMessage(input), "")
	require.NoError(t, err)
	return task
}

func TestChatRunner(t *testing.T) {
	t.Parallel()

	t.Run("sends defaults and returns the first choice", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}]}`))
		}))
		defer srv.Close()

		runner, err := openai.NewChatRunner(openai.Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"}, srv.Client(), nil)
		require.NoError(t, err)

		result, err := runner.Run(context.Background(), chatTask(t, `{"messages":[{"role":"user","content":"Hi"}]}`))
		require.NoError(t, err)
		assert.Equal(t, backend.KindText, result.Kind)
		assert.Equal(t, "Hello!", result.Text)

		assert.Equal(t, "gpt-4o-mini", got["model"])
		assert.InDelta(t, 0.7, got["temperature"], 1e-9)
		assert.EqualValues(t, 1000, got["max_tokens"])
		assert.EqualValues(t, 1, got["top_p"])
	})

	t.Run("task overrides are forwarded", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
		}))
		defer srv.Close()

		runner, err := openai.NewChatRunner(openai.Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"}, srv.Client(), nil)
		require.NoError(t, err)

		_, err = runner.Run(context.Background(), chatTask(t,
			`{"messages":[{"role":"user","content":"Hi"}],"model":"gpt-4o","temperature":0.1,"maxTokens":50}`))
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", got["model"])
		assert.InDelta(t, 0.1, got["temperature"], 1e-9)
		assert.EqualValues(t, 50, got["max_tokens"])
	})

	t.Run("api error message is surfaced as a backend error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
		}))
		defer srv.Close()

		runner, err := openai.NewChatRunner(openai.Config{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client(), nil)
		require.NoError(t, err)

		_, err = runner.Run(context.Background(), chatTask(t, `{"messages":[{"role":"user","content":"Hi"}]}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrBackend)
		assert.Equal(t, "openai: api returned 429: Rate limit reached", err.Error())
	})

	t.Run("empty choices is a backend error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		runner, err := openai.NewChatRunner(openai.Config{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client(), nil)
		require.NoError(t, err)

		_, err = runner.Run(context.Background(), chatTask(t, `{"messages":[{"role":"user","content":"Hi"}]}`))
		assert.ErrorIs(t, err, domain.ErrBackend)
	})

	t.Run("api key is required", func(t *testing.T) {
		_, err := openai.NewChatRunner(openai.Config{}, nil, nil)
		assert.Error(t, err)
	})
}
