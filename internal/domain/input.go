package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInputNotObject is returned when a task input is missing or is not a
// JSON object.
var ErrInputNotObject = errors.New("input is required and must be an object")

// Input is the tagged union of backend-specific task inputs. The concrete
// type is selected by the task type.
type Input interface {
	TaskType() TaskType
}

// ImageGenInput drives an image prediction. Params is merged over the
// model's default parameters, and Prompt over Params.
type ImageGenInput struct {
	Version string         `json:"version,omitempty"`
	Prompt  string         `json:"prompt,omitempty"`
	Params  map[string]any `json:"input,omitempty"`
}

// VideoGenInput drives a video prediction.
type VideoGenInput struct {
	Version string         `json:"version,omitempty"`
	Prompt  string         `json:"prompt,omitempty"`
	Params  map[string]any `json:"input,omitempty"`
}

// TextGenInput is a single-prompt text generation request.
type TextGenInput struct {
	Prompt            string   `json:"prompt" validate:"required"`
	Model             string   `json:"model,omitempty"`
	SystemInstruction string   `json:"systemInstruction,omitempty"`
	Temperature       *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxOutputTokens   *int32   `json:"maxOutputTokens,omitempty" validate:"omitempty,gt=0"`
}

// SpeechGenInput is a text-to-speech request.
type SpeechGenInput struct {
	Text            string   `json:"text" validate:"required"`
	VoiceID         string   `json:"voiceId,omitempty"`
	ModelID         string   `json:"modelId,omitempty"`
	Stability       *float64 `json:"stability,omitempty" validate:"omitempty,gte=0,lte=1"`
	SimilarityBoost *float64 `json:"similarityBoost,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatInput is a chat completion request.
type ChatInput struct {
	Messages         []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Model            string        `json:"model,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens        *int          `json:"maxTokens,omitempty" validate:"omitempty,gt=0"`
	TopP             *float64      `json:"topP,omitempty" validate:"omitempty,gte=0,lte=1"`
	FrequencyPenalty *float64      `json:"frequencyPenalty,omitempty" validate:"omitempty,gte=-2,lte=2"`
	PresencePenalty  *float64      `json:"presencePenalty,omitempty" validate:"omitempty,gte=-2,lte=2"`
}

func (ImageGenInput) TaskType() TaskType  { return TaskTypeImageGen }
func (VideoGenInput) TaskType() TaskType  { return TaskTypeVideoGen }
func (TextGenInput) TaskType() TaskType   { return TaskTypeTextGen }
func (SpeechGenInput) TaskType() TaskType { return TaskTypeSpeechGen }
func (ChatInput) TaskType() TaskType      { return TaskTypeChat }

// EffectivePrompt returns Prompt, falling back to a "prompt" entry in Params.
func (in ImageGenInput) EffectivePrompt() string {
	return effectivePrompt(in.Prompt, in.Params)
}

// EffectivePrompt returns Prompt, falling back to a "prompt" entry in Params.
func (in VideoGenInput) EffectivePrompt() string {
	return effectivePrompt(in.Prompt, in.Params)
}

func effectivePrompt(prompt string, params map[string]any) string {
	if prompt != "" {
		return prompt
	}
	if p, ok := params["prompt"].(string); ok {
		return p
	}
	return ""
}

var validate = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// IsJSONObject reports whether raw holds a JSON object.
func IsJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// DecodeInput decodes and validates raw as the input variant for taskType.
func DecodeInput(taskType TaskType, raw json.RawMessage) (Input, error) {
	if !IsJSONObject(raw) {
		return nil, NewValidationError("", ErrInputNotObject.Error(), ErrInputNotObject)
	}

	var in Input
	var err error
	switch taskType {
	case TaskTypeImageGen:
		var v ImageGenInput
		err = decodeAndValidate(raw, &v)
		if err == nil && v.EffectivePrompt() == "" {
			err = NewValidationError("input.prompt", "is required", ErrValidation)
		}
		in = v
	case TaskTypeVideoGen:
		var v VideoGenInput
		err = decodeAndValidate(raw, &v)
		if err == nil && v.EffectivePrompt() == "" {
			err = NewValidationError("input.prompt", "is required", ErrValidation)
		}
		in = v
	case TaskTypeTextGen:
		var v TextGenInput
		err = decodeAndValidate(raw, &v)
		in = v
	case TaskTypeSpeechGen:
		var v SpeechGenInput
		err = decodeAndValidate(raw, &v)
		in = v
	case TaskTypeChat:
		var v ChatInput
		err = decodeAndValidate(raw, &v)
		in = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTaskType, taskType)
	}

	if err != nil {
		return nil, err
	}
	return in, nil
}

func decodeAndValidate(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return NewValidationError("input", "has invalid format", err)
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewValidationError("input."+fieldPath(fe.Namespace()), tagMessage(fe), ErrValidation)
		}
		return NewValidationError("input", "is invalid", err)
	}
	return nil
}

// fieldPath drops the leading struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gt", "gte", "lt", "lte":
		return "is out of range"
	default:
		return "is invalid"
	}
}
