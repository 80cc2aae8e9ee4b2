// Package notify delivers usage alerts to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
)

// Sink receives usage alerts. Callers treat errors as best-effort.
type Sink interface {
	Notify(ctx context.Context, alert *domain.UsageAlert) error
}

// LogSink writes alerts as warning log lines.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, alert *domain.UsageAlert) error {
	logger.With(logger.Fields{
		logger.FieldProvider: alert.Provider,
		"alert_type":         string(alert.AlertType),
		"threshold":          alert.Threshold,
		"current_value":      alert.CurrentValue,
	}).Warn(ctx, "AI usage alert: %s", alert.Message)
	return nil
}

// WebhookSink posts alerts as JSON to an HTTP endpoint, e.g. a chat or
// error-tracking webhook.
type WebhookSink struct {
	client *resty.Client
	url    string
}

// NewWebhookSink creates a WebhookSink. A zero timeout means 5s.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)
	return &WebhookSink{client: client, url: url}
}

type webhookPayload struct {
	Text         string  `json:"text"`
	Level        string  `json:"level"`
	Provider     string  `json:"provider"`
	AlertType    string  `json:"alertType"`
	AlertDate    string  `json:"alertDate"`
	Threshold    float64 `json:"threshold"`
	CurrentValue float64 `json:"currentValue"`
}

func (s *WebhookSink) Notify(ctx context.Context, alert *domain.UsageAlert) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			Text:         alert.Message,
			Level:        "warning",
			Provider:     alert.Provider,
			AlertType:    string(alert.AlertType),
			AlertDate:    alert.AlertDate,
			Threshold:    alert.Threshold,
			CurrentValue: alert.CurrentValue,
		}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("failed to post alert webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}

// MultiSink fans an alert out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, alert *domain.UsageAlert) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
