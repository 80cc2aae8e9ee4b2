package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/quizgen/internal/config"
)

const (
	jinaEndpoint = "https://api.jina.ai/v1/embeddings"

	// EndpointQuestionIndex attributes embedding calls in the usage ledger.
	EndpointQuestionIndex = "question-index"
)

// Embedder turns question text into vectors.
type Embedder interface {
	Model() string
	// Embed embeds stored documents.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// EmbeddingService calls a Jina or OpenAI-compatible embeddings API and
// meters each call in the usage ledger.
type EmbeddingService struct {
	client     *resty.Client
	provider   string
	model      string
	dimensions int
	endpoint   string
	usage      UsageRecorder
}

// NewEmbeddingService creates an embedding client. usage may be nil.
func NewEmbeddingService(cfg *config.EmbeddingConfig, usage UsageRecorder) *EmbeddingService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(30 * time.Second)

	endpoint := jinaEndpoint
	if cfg.BaseURL != "" {
		endpoint = strings.TrimSuffix(cfg.BaseURL, "/") + "/embeddings"
	}

	return &EmbeddingService{
		client:     client,
		provider:   cfg.Provider,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		endpoint:   endpoint,
		usage:      usage,
	}
}

// Model returns the model name being used
func (s *EmbeddingService) Model() string {
	return s.model
}

type embeddingRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens  int `json:"total_tokens"`
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

type embeddingError struct {
	Detail string `json:"detail"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, text, "retrieval.passage")
}

func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.embed(ctx, query, "retrieval.query")
}

func (s *EmbeddingService) embed(ctx context.Context, text, task string) ([]float32, error) {
	req := embeddingRequest{
		Model:      s.model,
		Dimensions: s.dimensions,
		Input:      []string{text},
	}
	// task and embedding_type are Jina extensions
	if s.provider == "" || s.provider == "jina" {
		req.Task = task
		req.EmbeddingType = "float"
	}

	start := time.Now()
	vector, tokens, err := s.post(ctx, req)
	in := UsageInput{
		Provider:     s.usageProvider(),
		Model:        s.model,
		Endpoint:     EndpointQuestionIndex,
		PromptTokens: tokens,
		Duration:     time.Since(start),
		Success:      err == nil,
		Metadata:     map[string]interface{}{"task": task},
	}
	if err != nil {
		in.PromptTokens = 0
		in.ErrorMessage = err.Error()
	} else if tokens == 0 {
		in.PromptTokens = estimateTokens(text)
		in.TokensEstimated = true
	}
	if s.usage != nil {
		s.usage.RecordUsage(ctx, in)
	}
	return vector, err
}

func (s *EmbeddingService) usageProvider() string {
	if s.provider == "openai-compatible" {
		return "openai"
	}
	return "jina"
}

func (s *EmbeddingService) post(ctx context.Context, req embeddingRequest) ([]float32, int, error) {
	var (
		resp    embeddingResponse
		apiErr  embeddingError
		service = s.usageProvider()
	)
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&apiErr).
		Post(s.endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to call %s embeddings API: %w", service, err)
	}

	if httpResp.IsError() {
		msg := apiErr.Detail
		if msg == "" {
			msg = apiErr.Error.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("status %d", httpResp.StatusCode())
		}
		return nil, 0, fmt.Errorf("%s embeddings API error: %s", service, msg)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, 0, fmt.Errorf("no embedding returned")
	}

	tokens := resp.Usage.PromptTokens
	if tokens == 0 {
		tokens = resp.Usage.TotalTokens
	}
	return resp.Data[0].Embedding, tokens, nil
}
