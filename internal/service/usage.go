package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/quizgen/internal/config"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/metrics"
	"github.com/timmy/quizgen/internal/notify"
	"github.com/timmy/quizgen/internal/repository"
)

// dateLayout formats local calendar days of ledger rows and alerts.
const dateLayout = "2006-01-02"

// PriceKey selects a row of the price table.
type PriceKey struct {
	Provider string
	Model    string
}

// Price holds USD per-token rates.
type Price struct {
	PromptRate     float64
	CompletionRate float64
}

// PriceTable maps provider/model pairs to token rates.
type PriceTable map[PriceKey]Price

// DefaultPriceTable returns the built-in rates.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		{"openai", "gpt-4"}:                  {PromptRate: 0.00003, CompletionRate: 0.00006},
		{"openai", "gpt-4-turbo"}:            {PromptRate: 0.00001, CompletionRate: 0.00003},
		{"openai", "gpt-4o"}:                 {PromptRate: 0.000005, CompletionRate: 0.000015},
		{"openai", "gpt-4o-mini"}:            {PromptRate: 0.00000015, CompletionRate: 0.0000006},
		{"openai", "gpt-3.5-turbo"}:          {PromptRate: 0.0000005, CompletionRate: 0.0000015},
		{"gemini", "gemini-pro"}:             {PromptRate: 0.0000005, CompletionRate: 0.0000015},
		{"gemini", "gemini-1.5-pro"}:         {PromptRate: 0.0000035, CompletionRate: 0.0000105},
		{"gemini", "gemini-1.5-flash"}:       {PromptRate: 0.000000075, CompletionRate: 0.0000003},
		{"gemini", "gemini-2.0-flash"}:       {PromptRate: 0.0000001, CompletionRate: 0.0000004},
		{"jina", "jina-embeddings-v3"}:       {PromptRate: 0.00000002, CompletionRate: 0},
		{"jina", "jina-embeddings-v2"}:       {PromptRate: 0.00000002, CompletionRate: 0},
		{"openai", "text-embedding-3-small"}: {PromptRate: 0.00000002, CompletionRate: 0},
	}
}

// WithOverrides returns a copy of t with the configured rates applied on
// top.
func (t PriceTable) WithOverrides(overrides []config.PriceConfig) PriceTable {
	out := make(PriceTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for _, o := range overrides {
		if o.Provider == "" || o.Model == "" {
			continue
		}
		out[PriceKey{Provider: o.Provider, Model: o.Model}] = Price{PromptRate: o.PromptRate, CompletionRate: o.CompletionRate}
	}
	return out
}

// Thresholds are the governor's alert limits. A zero or negative limit
// disables its check.
type Thresholds struct {
	HourlyCost    float64
	DailyCost     float64
	DailyCalls    int
	MonthlyBudget float64
}

// DefaultThresholds returns the limits used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{HourlyCost: 5, DailyCost: 50, DailyCalls: 1000, MonthlyBudget: 500}
}

// UsageInput describes one completion attempt to be metered.
type UsageInput struct {
	Provider         string
	Model            string
	UserID           string
	Endpoint         string
	PromptTokens     int
	CompletionTokens int
	TokensEstimated  bool
	ResponseBytes    int
	Duration         time.Duration
	Success          bool
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// UsageConfig configures a UsageService.
type UsageConfig struct {
	Prices     PriceTable
	Thresholds Thresholds
	// Location defines where "today" and "this month" start. Defaults to
	// time.Local.
	Location *time.Location
}

// UsageService meters completion calls, raises threshold alerts and
// answers usage queries. Recording never fails the caller.
type UsageService struct {
	repo       *repository.UsageRepository
	prices     PriceTable
	thresholds Thresholds
	loc        *time.Location
	sink       notify.Sink
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewUsageService creates a usage service. sink and m may be nil.
func NewUsageService(repo *repository.UsageRepository, cfg UsageConfig, sink notify.Sink, m *metrics.Metrics) *UsageService {
	prices := cfg.Prices
	if prices == nil {
		prices = DefaultPriceTable()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &UsageService{
		repo:       repo,
		prices:     prices,
		thresholds: cfg.Thresholds,
		loc:        loc,
		sink:       sink,
		metrics:    m,
		now:        time.Now,
	}
}

func roundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// CalculateCost prices a call from the static table, rounded to 6
// decimals. Unknown provider/model pairs cost 0.
func (s *UsageService) CalculateCost(provider, model string, promptTokens, completionTokens int) float64 {
	price, ok := s.prices[PriceKey{Provider: provider, Model: model}]
	if !ok {
		logger.Warn("No price for provider=%s model=%s, recording zero cost", provider, model)
		return 0
	}
	return roundCost(float64(promptTokens)*price.PromptRate + float64(completionTokens)*price.CompletionRate)
}

// RecordUsage appends a ledger row and evaluates alert thresholds for its
// provider. It returns nil when the row could not be stored; it never
// returns an error.
func (s *UsageService) RecordUsage(ctx context.Context, in UsageInput) *domain.UsageRecord {
	now := s.now()
	rec := &domain.UsageRecord{
		ID:               uuid.New().String(),
		Provider:         in.Provider,
		Model:            in.Model,
		UserID:           in.UserID,
		Endpoint:         in.Endpoint,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TotalTokens:      in.PromptTokens + in.CompletionTokens,
		TokensEstimated:  in.TokensEstimated,
		EstimatedCost:    s.CalculateCost(in.Provider, in.Model, in.PromptTokens, in.CompletionTokens),
		ResponseBytes:    in.ResponseBytes,
		DurationMs:       in.Duration.Milliseconds(),
		Success:          in.Success,
		ErrorMessage:     in.ErrorMessage,
		UsageDate:        now.In(s.loc).Format(dateLayout),
		CreatedAt:        now.UTC(),
	}
	if len(in.Metadata) > 0 {
		if raw, err := json.Marshal(in.Metadata); err == nil {
			rec.Metadata = raw
		}
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldProvider, in.Provider).
			Error("Failed to record AI usage")
		return nil
	}
	s.metrics.ObserveUsage(rec.Provider, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.EstimatedCost)

	s.checkThresholds(ctx, rec)
	return rec
}

type windowCheck struct {
	alertType domain.AlertType
	label     string
	limit     float64
	value     float64
	isCount   bool
}

// checkThresholds compares every rolling window, including rec itself,
// against its limit. Failures are logged and dropped.
func (s *UsageService) checkThresholds(ctx context.Context, rec *domain.UsageRecord) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Usage alert evaluation panicked: %v", r)
		}
	}()

	now := rec.CreatedAt
	dayStart, monthStart := s.dayStart(now), s.monthStart(now)

	var checks []windowCheck
	if s.thresholds.HourlyCost > 0 {
		sum, err := s.repo.SumCost(ctx, rec.Provider, now.Add(-time.Hour), rec.ID)
		if err != nil {
			s.logAlertError(ctx, rec, err)
			return
		}
		checks = append(checks, windowCheck{domain.AlertHourlyCost, "hourly cost", s.thresholds.HourlyCost, sum + rec.EstimatedCost, false})
	}
	if s.thresholds.DailyCost > 0 {
		sum, err := s.repo.SumCost(ctx, rec.Provider, dayStart, rec.ID)
		if err != nil {
			s.logAlertError(ctx, rec, err)
			return
		}
		checks = append(checks, windowCheck{domain.AlertDailyCost, "daily cost", s.thresholds.DailyCost, sum + rec.EstimatedCost, false})
	}
	if s.thresholds.DailyCalls > 0 {
		count, err := s.repo.CountCalls(ctx, rec.Provider, dayStart, rec.ID)
		if err != nil {
			s.logAlertError(ctx, rec, err)
			return
		}
		checks = append(checks, windowCheck{domain.AlertDailyCalls, "daily calls", float64(s.thresholds.DailyCalls), float64(count + 1), true})
	}
	if s.thresholds.MonthlyBudget > 0 {
		sum, err := s.repo.SumCost(ctx, rec.Provider, monthStart, rec.ID)
		if err != nil {
			s.logAlertError(ctx, rec, err)
			return
		}
		checks = append(checks, windowCheck{domain.AlertMonthlyBudget, "monthly cost", s.thresholds.MonthlyBudget, sum + rec.EstimatedCost, false})
	}

	for _, c := range checks {
		if c.value > c.limit {
			s.raiseAlert(ctx, rec.Provider, c, now)
		}
	}
}

func (s *UsageService) logAlertError(ctx context.Context, rec *domain.UsageRecord, err error) {
	logger.FromContext(ctx).WithError(err).WithField(logger.FieldProvider, rec.Provider).
		Error("Failed to evaluate usage thresholds")
}

func (s *UsageService) raiseAlert(ctx context.Context, provider string, c windowCheck, now time.Time) {
	var message string
	if c.isCount {
		message = fmt.Sprintf("%s %s %d exceeds limit %d", provider, c.label, int64(c.value), int64(c.limit))
	} else {
		c.value = roundCost(c.value)
		message = fmt.Sprintf("%s %s $%.4f exceeds limit $%.2f", provider, c.label, c.value, c.limit)
	}

	alert, err := s.repo.UpsertAlert(ctx, &domain.UsageAlert{
		ID:           uuid.New().String(),
		Provider:     provider,
		AlertType:    c.alertType,
		AlertDate:    now.In(s.loc).Format(dateLayout),
		Threshold:    c.limit,
		CurrentValue: c.value,
		Triggered:    true,
		Message:      message,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldProvider, provider).
			Error("Failed to store usage alert")
		return
	}
	s.metrics.AlertRaised(provider, string(c.alertType))

	if s.sink == nil {
		return
	}
	claimed, err := s.repo.ClaimAlertNotification(ctx, alert.ID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to claim alert notification")
		return
	}
	if !claimed {
		return
	}
	if err := s.sink.Notify(ctx, alert); err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldProvider, provider).
			Warn("Failed to deliver usage alert")
	}
}

func (s *UsageService) dayStart(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

func (s *UsageService) monthStart(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
}

// GetStats aggregates the ledger rows matching filter.
func (s *UsageService) GetStats(ctx context.Context, filter repository.UsageFilter) (*domain.UsageStats, error) {
	stats, err := s.repo.Stats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage stats: %w", err)
	}
	stats.TotalCost = roundCost(stats.TotalCost)
	return stats, nil
}

// GetDailyBreakdown returns cost and calls per provider per day for the
// last days days (default 30), oldest day first.
func (s *UsageService) GetDailyBreakdown(ctx context.Context, days int) ([]domain.DailyUsage, error) {
	if days <= 0 {
		days = 30
	}
	since := s.dayStart(s.now()).AddDate(0, 0, -(days - 1)).Format(dateLayout)

	rows, err := s.repo.DailyBreakdown(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily usage: %w", err)
	}
	for i := range rows {
		rows[i].TotalCost = roundCost(rows[i].TotalCost)
	}
	return rows, nil
}

// GetEndpointBreakdown returns usage per logical endpoint, most expensive
// first.
func (s *UsageService) GetEndpointBreakdown(ctx context.Context, filter repository.UsageFilter) ([]domain.EndpointUsage, error) {
	rows, err := s.repo.EndpointBreakdown(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load endpoint usage: %w", err)
	}
	for i := range rows {
		rows[i].TotalCost = roundCost(rows[i].TotalCost)
	}
	return rows, nil
}

// monthlySpend returns this calendar month's cost for provider, or for
// all providers when provider is empty.
func (s *UsageService) monthlySpend(ctx context.Context, provider string) (float64, error) {
	spent, err := s.repo.SumCost(ctx, provider, s.monthStart(s.now()), "")
	if err != nil {
		return 0, fmt.Errorf("failed to load monthly spend: %w", err)
	}
	return roundCost(spent), nil
}

// IsWithinBudget reports whether this month's spend is below the monthly
// budget. Without a budget everything is within budget.
func (s *UsageService) IsWithinBudget(ctx context.Context, provider string) (bool, error) {
	if s.thresholds.MonthlyBudget <= 0 {
		return true, nil
	}
	spent, err := s.monthlySpend(ctx, provider)
	if err != nil {
		return false, err
	}
	return spent < s.thresholds.MonthlyBudget, nil
}

// GetRemainingBudget returns the monthly budget left, never below zero.
func (s *UsageService) GetRemainingBudget(ctx context.Context, provider string) (float64, error) {
	spent, err := s.monthlySpend(ctx, provider)
	if err != nil {
		return 0, err
	}
	return roundCost(math.Max(0, s.thresholds.MonthlyBudget-spent)), nil
}

// MonthlyBudget returns the configured monthly budget in USD, 0 when
// budgeting is disabled.
func (s *UsageService) MonthlyBudget() float64 {
	if s.thresholds.MonthlyBudget <= 0 {
		return 0
	}
	return s.thresholds.MonthlyBudget
}

// ListAlerts returns the alerts of the last days days (default 7).
func (s *UsageService) ListAlerts(ctx context.Context, days int) ([]domain.UsageAlert, error) {
	if days <= 0 {
		days = 7
	}
	since := s.dayStart(s.now()).AddDate(0, 0, -(days - 1)).Format(dateLayout)
	alerts, err := s.repo.ListAlerts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage alerts: %w", err)
	}
	return alerts, nil
}
