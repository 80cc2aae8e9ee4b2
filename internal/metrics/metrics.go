// Package metrics holds the Prometheus collectors of the completion
// gateway, the usage governor and the generation engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	completionCalls   *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	tokens            *prometheus.CounterVec
	cost              *prometheus.CounterVec
	alerts            *prometheus.CounterVec
	jobs              *prometheus.CounterVec
	items             *prometheus.CounterVec
	reviews           *prometheus.CounterVec
	jobProgress       *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		completionCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizgen_completion_calls_total",
				Help: "Completion attempts per provider and outcome",
			},
			[]string{"provider", "success"},
		),
		completionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quizgen_completion_duration_milliseconds",
				Help:    "Completion attempt duration in milliseconds",
				Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
			},
			[]string{"provider"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizgen_llm_tokens_total",
				Help: "LLM tokens recorded in the usage ledger",
			},
			[]string{"provider", "model", "type"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizgen_llm_cost_usd_total",
				Help: "Estimated LLM cost in USD recorded in the usage ledger",
			},
			[]string{"provider", "model"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizgen_usage_alerts_total",
				Help: "Usage threshold breaches per provider and alert type",
			},
			[]string{"provider", "alert_type"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizgen_generation_jobs_total",
				Help: "Generation jobs that reached a terminal status",
			},
			[]string{"status"},
		),
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizgen_generated_items_total",
				Help: "Generated candidate questions by validation outcome",
			},
			[]string{"outcome"},
		),
		reviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizgen_item_reviews_total",
				Help: "Review decisions applied to generated questions",
			},
			[]string{"status"},
		),
		jobProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quizgen_generation_job_progress_percent",
				Help: "Progress of in-flight generation jobs",
			},
			[]string{"job_id"},
		),
	}

	reg.MustRegister(
		m.completionCalls,
		m.completionLatency,
		m.tokens,
		m.cost,
		m.alerts,
		m.jobs,
		m.items,
		m.reviews,
		m.jobProgress,
	)
	return m
}

// ObserveCompletion records one provider attempt.
func (m *Metrics) ObserveCompletion(provider string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completionCalls.WithLabelValues(provider, strconv.FormatBool(success)).Inc()
	m.completionLatency.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
}

// ObserveUsage records tokens and cost of a ledger row.
func (m *Metrics) ObserveUsage(provider, model string, promptTokens, completionTokens int, cost float64) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	m.tokens.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	m.cost.WithLabelValues(provider, model).Add(cost)
}

// AlertRaised counts a threshold breach.
func (m *Metrics) AlertRaised(provider, alertType string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(provider, alertType).Inc()
}

// JobFinished counts a job reaching status and drops its progress gauge.
func (m *Metrics) JobFinished(jobID, status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
	m.jobProgress.DeleteLabelValues(jobID)
}

// JobProgress sets the progress gauge of an in-flight job.
func (m *Metrics) JobProgress(jobID string, progress int) {
	if m == nil {
		return
	}
	m.jobProgress.WithLabelValues(jobID).Set(float64(progress))
}

// ItemsGenerated counts kept and dropped candidates of one chapter step.
func (m *Metrics) ItemsGenerated(kept, dropped int) {
	if m == nil {
		return
	}
	m.items.WithLabelValues("kept").Add(float64(kept))
	m.items.WithLabelValues("dropped").Add(float64(dropped))
}

// ItemReviewed counts a review decision.
func (m *Metrics) ItemReviewed(status string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(status).Inc()
}
