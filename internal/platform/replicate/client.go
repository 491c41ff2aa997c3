// Package replicate talks to the Replicate predictions API and provides the
// image-gen and video-gen runners built on it.
package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	replicatego "github.com/replicate/replicate-go"

	"github.com/phrazzld/genflow/internal/domain"
)

// DefaultBaseURL is the public Replicate API root.
const DefaultBaseURL = "https://api.replicate.com/v1"

// Prediction statuses reported by Replicate.
const (
	StatusStarting   = string(replicatego.Starting)
	StatusProcessing = string(replicatego.Processing)
	StatusSucceeded  = string(replicatego.Succeeded)
	StatusFailed     = string(replicatego.Failed)
	StatusCanceled   = string(replicatego.Canceled)
)

// PredictionRequest starts a prediction.
type PredictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

// Prediction is the upstream view of a running or finished job.
type Prediction struct {
	ID      string            `json:"id"`
	Version string            `json:"version,omitempty"`
	Status  string            `json:"status"`
	Input   json.RawMessage   `json:"input,omitempty"`
	Output  json.RawMessage   `json:"output,omitempty"`
	Error   json.RawMessage   `json:"error,omitempty"`
	URLs    map[string]string `json:"urls,omitempty"`
}

// IsTerminal reports whether the prediction will not change any more.
func (p *Prediction) IsTerminal() bool {
	return replicatego.Status(p.Status).Terminated()
}

// TaskStatus maps the upstream status onto the task lifecycle. A canceled
// prediction counts as failed.
func (p *Prediction) TaskStatus() domain.TaskStatus {
	switch p.Status {
	case StatusProcessing:
		return domain.TaskStatusProcessing
	case StatusSucceeded:
		return domain.TaskStatusSucceeded
	case StatusFailed, StatusCanceled:
		return domain.TaskStatusFailed
	default:
		return domain.TaskStatusStarting
	}
}

// ErrorMessage flattens the upstream error, which may be a string or an
// object, into text.
func (p *Prediction) ErrorMessage() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		if p.Status == StatusCanceled {
			return "prediction was canceled"
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	return string(p.Error)
}

// OutputURLs decodes the output as a list of URLs.
func (p *Prediction) OutputURLs() ([]string, error) {
	var urls []string
	if err := json.Unmarshal(p.Output, &urls); err != nil {
		return nil, fmt.Errorf("unexpected output format: expected a list of URLs")
	}
	return urls, nil
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("replicate api returned %d: %s", e.StatusCode, e.Body)
}

// Client wraps the Replicate SDK client with the prediction shapes used in
// this module. It is safe for concurrent use.
type Client struct {
	api *replicatego.Client
}

// NewClient creates a client. A nil httpClient gets a 30s timeout client.
// GET requests that hit 429 or 5xx are retried twice.
func NewClient(baseURL, token string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// The SDK has no per-call headers, so request ids ride on the context.
	tagged := *httpClient
	tagged.Transport = &headerTransport{next: httpClient.Transport}

	api, err := replicatego.NewClient(
		replicatego.WithToken(token),
		replicatego.WithBaseURL(baseURL),
		replicatego.WithHTTPClient(&tagged),
		replicatego.WithRetryPolicy(2, &replicatego.ExponentialBackoff{
			Base:       250 * time.Millisecond,
			Multiplier: 2,
			Jitter:     50 * time.Millisecond,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create replicate client: %w", err)
	}
	return &Client{api: api}, nil
}

// CreatePrediction calls POST /predictions. requestID is forwarded as
// X-Request-ID when set.
func (c *Client) CreatePrediction(ctx context.Context, req PredictionRequest, requestID string) (*Prediction, error) {
	pred, err := c.api.CreatePrediction(withRequestID(ctx, requestID), req.Version, replicatego.PredictionInput(req.Input), nil, false)
	if err != nil {
		return nil, translateError(err)
	}
	return fromSDK(pred)
}

// GetPrediction calls GET /predictions/{id}. The id is path-escaped.
func (c *Client) GetPrediction(ctx context.Context, id string, requestID string) (*Prediction, error) {
	pred, err := c.api.GetPrediction(withRequestID(ctx, requestID), url.PathEscape(id))
	if err != nil {
		return nil, translateError(err)
	}
	return fromSDK(pred)
}

// Wait fetches the prediction, then polls every interval until it is
// terminal or ctx is done.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (*Prediction, error) {
	pred, err := c.api.GetPrediction(ctx, url.PathEscape(id))
	if err != nil {
		return nil, translateError(err)
	}
	if !pred.Status.Terminated() {
		if err := c.api.Wait(ctx, pred, replicatego.WithPollingInterval(interval)); err != nil {
			return nil, translateError(err)
		}
	}
	return fromSDK(pred)
}

// fromSDK decodes the raw response body the SDK kept, so outputs and errors
// stay as the JSON Replicate sent.
func fromSDK(p *replicatego.Prediction) (*Prediction, error) {
	raw := p.RawJSON()
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(p); err != nil {
			return nil, fmt.Errorf("failed to encode prediction: %w", err)
		}
	}

	var out Prediction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode replicate response: %w", err)
	}
	return &out, nil
}

func translateError(err error) error {
	var apiErr *replicatego.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Status, Body: apiErr.Error()}
	}
	return err
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// headerTransport adds the request id and a proxy timestamp to every call.
type headerTransport struct {
	next http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}

	req = req.Clone(req.Context())
	if id, ok := req.Context().Value(requestIDKey{}).(string); ok {
		req.Header.Set("X-Request-ID", id)
	}
	req.Header.Set("X-Proxy-Timestamp", time.Now().UTC().Format(time.RFC3339Nano))
	return next.RoundTrip(req)
}
