package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInput(t *testing.T) {
	t.Parallel()

	t.Run("image-gen with top level prompt", func(t *testing.T) {
		in, err := DecodeInput(TaskTypeImageGen, json.RawMessage(`{"prompt":"a cat"}`))
		require.NoError(t, err)

		img, ok := in.(ImageGenInput)
		require.True(t, ok)
		assert.Equal(t, "a cat", img.EffectivePrompt())
		assert.Equal(t, TaskTypeImageGen, in.TaskType())
	})

	t.Run("image-gen with prompt nested in params", func(t *testing.T) {
		in, err := DecodeInput(TaskTypeImageGen,
			json.RawMessage(`{"version":"abc","input":{"prompt":"a dog","num_outputs":2}}`))
		require.NoError(t, err)

		img := in.(ImageGenInput)
		assert.Equal(t, "abc", img.Version)
		assert.Equal(t, "a dog", img.EffectivePrompt())
		assert.EqualValues(t, 2, img.Params["num_outputs"])
	})

	t.Run("video-gen without prompt", func(t *testing.T) {
		_, err := DecodeInput(TaskTypeVideoGen, json.RawMessage(`{"version":"abc"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, "input.prompt is required", err.Error())
	})

	t.Run("chat with invalid role", func(t *testing.T) {
		_, err := DecodeInput(TaskTypeChat,
			json.RawMessage(`{"messages":[{"role":"robot","content":"hi"}]}`))
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "input.messages[0].role", verr.Field)
		assert.Contains(t, verr.Message, "must be one of")
	})

	t.Run("chat with no messages", func(t *testing.T) {
		_, err := DecodeInput(TaskTypeChat, json.RawMessage(`{"messages":[]}`))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("speech-gen stability out of range", func(t *testing.T) {
		_, err := DecodeInput(TaskTypeSpeechGen, json.RawMessage(`{"text":"hello","stability":1.5}`))
		require.Error(t, err)
		assert.Equal(t, "input.stability is out of range", err.Error())
	})

	t.Run("text-gen valid", func(t *testing.T) {
		in, err := DecodeInput(TaskTypeTextGen, json.RawMessage(`{"prompt":"write a haiku","temperature":0.4}`))
		require.NoError(t, err)
		txt := in.(TextGenInput)
		require.NotNil(t, txt.Temperature)
		assert.InDelta(t, 0.4, *txt.Temperature, 0.0001)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeInput(TaskTypeTextGen, json.RawMessage(`{"prompt":`))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing input", func(t *testing.T) {
		for _, raw := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(`[1]`)} {
			_, err := DecodeInput(TaskTypeTextGen, raw)
			assert.ErrorIs(t, err, ErrInputNotObject)
		}
	})
}

func TestJobRecord(t *testing.T) {
	t.Parallel()

	job := NewJobRecord("pred-1", TaskStatusStarting, json.RawMessage(`{"prompt":"x"}`), nil)
	assert.Equal(t, "pred-1", job.ID)
	assert.False(t, job.HasImages())
	assert.Equal(t, int64(JobRetention.Seconds()), job.TTL-job.CreatedAt)

	clone := job.Clone()
	clone.Images = append(clone.Images, "s3://bucket/key")
	assert.True(t, clone.HasImages())
	assert.False(t, job.HasImages())
}
