// Package provider implements the LLM completion backends the gateway
// falls back between.
package provider

import (
	"context"
	"fmt"
)

// Provider is one completion backend.
type Provider interface {
	Name() string
	Model() string
	// Priority orders providers; lower values are tried first.
	Priority() int
	IsConfigured() bool
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a single-turn completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	// JSONMode asks the backend for a JSON document as the whole reply.
	JSONMode bool
}

// Response carries the generated text and, when the backend reports it,
// token usage.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	HasUsage         bool
}

// APIError is a non-2xx answer from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// truncate shortens a response body for inclusion in an error message.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
