package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/metrics"
	"github.com/timmy/quizgen/internal/provider"
)

// ErrNoProviderConfigured is returned when no completion backend has
// credentials.
var ErrNoProviderConfigured = errors.New("no AI provider configured")

// charsPerToken estimates token counts when a backend reports none.
const charsPerToken = 4

// UsageRecorder meters completion attempts.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, in UsageInput) *domain.UsageRecord
}

// Completer generates text. CompletionGateway is the production
// implementation.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string, opts CompletionOptions) (string, error)
}

// CompletionOptions tunes one gateway call and attributes its usage.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool

	UserID   string
	Endpoint string
	// SkipUsage disables ledger recording for this call.
	SkipUsage bool
	Metadata  map[string]interface{}
}

// CompletionGateway tries the configured providers in priority order and
// returns the first non-empty answer.
type CompletionGateway struct {
	providers []provider.Provider
	usage     UsageRecorder
	metrics   *metrics.Metrics
}

// NewCompletionGateway creates a gateway over providers. usage and m may
// be nil.
func NewCompletionGateway(providers []provider.Provider, usage UsageRecorder, m *metrics.Metrics) *CompletionGateway {
	ordered := make([]provider.Provider, len(providers))
	copy(ordered, providers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})
	return &CompletionGateway{providers: ordered, usage: usage, metrics: m}
}

// Configured returns the providers that would be tried, in order.
func (g *CompletionGateway) Configured() []provider.Provider {
	var out []provider.Provider
	for _, p := range g.providers {
		if p.IsConfigured() {
			out = append(out, p)
		}
	}
	return out
}

// Complete runs prompt against each configured provider until one
// succeeds. Every attempt is recorded in the usage ledger unless
// opts.SkipUsage is set.
func (g *CompletionGateway) Complete(ctx context.Context, prompt, systemPrompt string, opts CompletionOptions) (string, error) {
	candidates := g.Configured()
	if len(candidates) == 0 {
		return "", ErrNoProviderConfigured
	}

	req := provider.Request{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
		JSONMode:     opts.JSONMode,
	}

	var lastErr error
	for _, p := range candidates {
		start := time.Now()
		resp, err := p.Complete(ctx, req)
		elapsed := time.Since(start)
		if err == nil && (resp == nil || resp.Text == "") {
			err = fmt.Errorf("%s returned an empty response", p.Name())
		}
		g.metrics.ObserveCompletion(p.Name(), err == nil, elapsed)

		if err != nil {
			lastErr = err
			logger.With(logger.Fields{
				logger.FieldProvider:   p.Name(),
				logger.FieldEndpoint:   opts.Endpoint,
				logger.FieldDurationMs: elapsed.Milliseconds(),
			}).Warn(ctx, "AI provider failed, trying next: %v", err)
			g.record(ctx, p, opts, UsageInput{
				Duration:     elapsed,
				Success:      false,
				ErrorMessage: err.Error(),
			})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		in := UsageInput{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			ResponseBytes:    len(resp.Text),
			Duration:         elapsed,
			Success:          true,
		}
		if !resp.HasUsage {
			in.PromptTokens = estimateTokens(systemPrompt) + estimateTokens(prompt)
			in.CompletionTokens = estimateTokens(resp.Text)
			in.TokensEstimated = true
		}
		g.record(ctx, p, opts, in)
		return resp.Text, nil
	}

	return "", fmt.Errorf("all AI providers failed: %w", lastErr)
}

func (g *CompletionGateway) record(ctx context.Context, p provider.Provider, opts CompletionOptions, in UsageInput) {
	if g.usage == nil || opts.SkipUsage {
		return
	}
	in.Provider = p.Name()
	in.Model = p.Model()
	in.UserID = opts.UserID
	in.Endpoint = opts.Endpoint
	in.Metadata = opts.Metadata
	g.usage.RecordUsage(ctx, in)
}

// estimateTokens applies the 4 characters per token rule, rounding up.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}
