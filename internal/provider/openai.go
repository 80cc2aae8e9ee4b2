package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Priority int
	Timeout  time.Duration
}

// OpenAI talks to /chat/completions of an OpenAI-compatible API.
type OpenAI struct {
	client   *resty.Client
	model    string
	apiKey   string
	priority int
	endpoint string
}

// NewOpenAI creates an OpenAI provider.
// Parameters:
//   - cfg: API key, model, base URL and priority.
//
// Returns:
//   - *OpenAI: provider; IsConfigured is false without an API key.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	return &OpenAI{
		client:   client,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		priority: cfg.Priority,
		endpoint: baseURL + "/chat/completions",
	}
}

func (p *OpenAI) Name() string       { return "openai" }
func (p *OpenAI) Model() string      { return p.model }
func (p *OpenAI) Priority() int      { return p.priority }
func (p *OpenAI) IsConfigured() bool { return p.apiKey != "" }

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

type openAIErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one chat completion. JSON mode maps to
// response_format {"type":"json_object"}.
func (p *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	body := openAIRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: req.Prompt})
	if req.JSONMode {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	var result openAIResponse
	var apiErr openAIErrorResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call OpenAI API: %w", err)
	}

	if httpResp.IsError() {
		msg := truncate(string(httpResp.Body()), 500)
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &APIError{Provider: p.Name(), StatusCode: httpResp.StatusCode(), Message: msg}
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenAI response (status: %d)", httpResp.StatusCode())
	}

	resp := &Response{Text: result.Choices[0].Message.Content}
	if result.Usage != nil {
		resp.PromptTokens = result.Usage.PromptTokens
		resp.CompletionTokens = result.Usage.CompletionTokens
		resp.HasUsage = true
	}
	return resp, nil
}
