package repository

import (
	"context"
	"time"

	"github.com/timmy/quizgen/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageFilter narrows ledger queries. Zero values match everything.
type UsageFilter struct {
	Provider string
	UserID   string
	Endpoint string
	Start    *time.Time
	End      *time.Time
}

// UsageRepository handles the AI usage ledger and its alerts. Ledger rows
// are insert-only.
type UsageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Create appends a ledger row.
func (r *UsageRepository) Create(ctx context.Context, rec *domain.UsageRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// SumCost totals the estimated cost of calls since the given instant,
// leaving out the row with excludeID. An empty provider sums all providers.
func (r *UsageRepository) SumCost(ctx context.Context, provider string, since time.Time, excludeID string) (float64, error) {
	var total float64
	err := r.window(ctx, provider, since, excludeID).
		Select("COALESCE(SUM(estimated_cost), 0.0)").
		Scan(&total).Error
	return total, err
}

// CountCalls counts calls since the given instant, leaving out the row
// with excludeID. An empty provider counts all providers.
func (r *UsageRepository) CountCalls(ctx context.Context, provider string, since time.Time, excludeID string) (int64, error) {
	var count int64
	err := r.window(ctx, provider, since, excludeID).Count(&count).Error
	return count, err
}

func (r *UsageRepository) window(ctx context.Context, provider string, since time.Time, excludeID string) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&domain.UsageRecord{}).
		Where("created_at >= ?", since.UTC())
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	return query
}

// Stats aggregates the rows matching filter.
func (r *UsageRepository) Stats(ctx context.Context, filter UsageFilter) (*domain.UsageStats, error) {
	var stats domain.UsageStats
	err := applyUsageFilter(r.db.WithContext(ctx).Model(&domain.UsageRecord{}), filter).
		Select(`COUNT(*) AS total_calls,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_calls,
			COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
			COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(SUM(estimated_cost), 0.0) AS total_cost,
			COALESCE(SUM(duration_ms), 0) AS total_duration_ms`).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	stats.FailedCalls = stats.TotalCalls - stats.SuccessCalls
	if stats.TotalCalls > 0 {
		stats.AvgDurationMs = float64(stats.TotalDurationMs) / float64(stats.TotalCalls)
	}
	return &stats, nil
}

// DailyBreakdown groups rows dated on or after sinceDate (YYYY-MM-DD) by
// usage date and provider, oldest day first.
func (r *UsageRepository) DailyBreakdown(ctx context.Context, sinceDate string) ([]domain.DailyUsage, error) {
	var rows []domain.DailyUsage
	err := r.db.WithContext(ctx).Model(&domain.UsageRecord{}).
		Select(`usage_date AS date,
			provider,
			COUNT(*) AS calls,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failed,
			COALESCE(SUM(estimated_cost), 0.0) AS total_cost`).
		Where("usage_date >= ?", sinceDate).
		Group("usage_date, provider").
		Order("usage_date ASC, provider ASC").
		Scan(&rows).Error
	return rows, err
}

// EndpointBreakdown groups matching rows by endpoint, most expensive first.
func (r *UsageRepository) EndpointBreakdown(ctx context.Context, filter UsageFilter) ([]domain.EndpointUsage, error) {
	var rows []domain.EndpointUsage
	err := applyUsageFilter(r.db.WithContext(ctx).Model(&domain.UsageRecord{}), filter).
		Select(`endpoint,
			COUNT(*) AS calls,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(SUM(estimated_cost), 0.0) AS total_cost,
			COALESCE(AVG(duration_ms), 0.0) AS avg_duration_ms`).
		Group("endpoint").
		Order("total_cost DESC").
		Scan(&rows).Error
	return rows, err
}

func applyUsageFilter(query *gorm.DB, filter UsageFilter) *gorm.DB {
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Endpoint != "" {
		query = query.Where("endpoint = ?", filter.Endpoint)
	}
	if filter.Start != nil {
		query = query.Where("created_at >= ?", filter.Start.UTC())
	}
	if filter.End != nil {
		query = query.Where("created_at <= ?", filter.End.UTC())
	}
	return query
}

// UpsertAlert creates the alert for (provider, alert_type, alert_date) or
// refreshes its current value and message. It returns the stored row.
func (r *UsageRepository) UpsertAlert(ctx context.Context, alert *domain.UsageAlert) (*domain.UsageAlert, error) {
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "alert_type"}, {Name: "alert_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"current_value": alert.CurrentValue,
			"message":       alert.Message,
			"threshold":     alert.Threshold,
			"triggered":     true,
			"updated_at":    alert.UpdatedAt,
		}),
	}).Create(alert).Error
	if err != nil {
		return nil, err
	}

	var stored domain.UsageAlert
	if err := db.First(&stored, "provider = ? AND alert_type = ? AND alert_date = ?",
		alert.Provider, alert.AlertType, alert.AlertDate).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// ClaimAlertNotification flips notification_sent for an alert. Only the
// first caller gets true.
func (r *UsageRepository) ClaimAlertNotification(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.UsageAlert{}).
		Where("id = ? AND notification_sent = ?", id, false).
		Update("notification_sent", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListAlerts returns alerts dated on or after sinceDate (YYYY-MM-DD),
// newest first.
func (r *UsageRepository) ListAlerts(ctx context.Context, sinceDate string) ([]domain.UsageAlert, error) {
	var alerts []domain.UsageAlert
	err := r.db.WithContext(ctx).
		Where("alert_date >= ?", sinceDate).
		Order("alert_date DESC, updated_at DESC").
		Find(&alerts).Error
	return alerts, err
}
