// Package gemini runs text-gen tasks against Google's Gemini API.
//
// The package is an infrastructure adapter: it translates a task's
// TextGenInput into a genai GenerateContent call and the response back into a
// backend.RawResult, without exposing the genai types to the dispatcher.
//
// Transient failures (rate limiting, 5xx responses, network errors) are
// retried with exponential backoff. Responses blocked by safety filters and
// empty responses are permanent failures and are returned immediately. Every
// failure reaches the caller as a *domain.BackendError.
package gemini
