package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiConfig configures a Google Gemini generateContent backend.
type GeminiConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Priority int
	Timeout  time.Duration
}

// Gemini talks to the v1beta generateContent API.
type Gemini struct {
	client   *resty.Client
	model    string
	apiKey   string
	priority int
	baseURL  string
}

// NewGemini creates a Gemini provider.
func NewGemini(cfg GeminiConfig) *Gemini {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}

	return &Gemini{
		client:   client,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		priority: cfg.Priority,
		baseURL:  baseURL,
	}
}

func (p *Gemini) Name() string       { return "gemini" }
func (p *Gemini) Model() string      { return p.model }
func (p *Gemini) Priority() int      { return p.priority }
func (p *Gemini) IsConfigured() bool { return p.apiKey != "" }

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type geminiErrorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Complete sends one generateContent call. JSON mode maps to
// generationConfig.responseMimeType "application/json".
func (p *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if req.JSONMode {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))

	var result geminiResponse
	var apiErr geminiErrorResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", p.apiKey).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call Gemini API: %w", err)
	}

	if httpResp.IsError() {
		msg := truncate(string(httpResp.Body()), 500)
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &APIError{Provider: p.Name(), StatusCode: httpResp.StatusCode(), Message: msg}
	}

	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in Gemini response (status: %d)", httpResp.StatusCode())
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	resp := &Response{Text: sb.String()}
	if result.UsageMetadata != nil {
		resp.PromptTokens = result.UsageMetadata.PromptTokenCount
		resp.CompletionTokens = result.UsageMetadata.CandidatesTokenCount
		resp.HasUsage = true
	}
	return resp, nil
}
