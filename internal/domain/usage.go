package domain

import (
	"time"

	"gorm.io/datatypes"
)

// UsageRecord is one completion attempt in the append-only usage ledger.
type UsageRecord struct {
	ID               string         `gorm:"type:text;primaryKey" json:"id"`
	Provider         string         `gorm:"type:text;not null;index:idx_ai_usage_provider_created,priority:1" json:"provider"`
	Model            string         `gorm:"type:text;not null" json:"model"`
	UserID           string         `gorm:"type:text;index:idx_ai_usage_user" json:"userId,omitempty"`
	Endpoint         string         `gorm:"type:text;index:idx_ai_usage_endpoint" json:"endpoint"`
	PromptTokens     int            `json:"promptTokens"`
	CompletionTokens int            `json:"completionTokens"`
	TotalTokens      int            `json:"totalTokens"`
	TokensEstimated  bool           `json:"tokensEstimated"`
	EstimatedCost    float64        `json:"estimatedCost"`
	ResponseBytes    int            `json:"responseBytes"`
	DurationMs       int64          `json:"durationMs"`
	Success          bool           `gorm:"index:idx_ai_usage_success" json:"success"`
	ErrorMessage     string         `gorm:"type:text" json:"errorMessage,omitempty"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
	// UsageDate is the local calendar day (YYYY-MM-DD) of CreatedAt.
	UsageDate string    `gorm:"type:text;index:idx_ai_usage_date" json:"usageDate"`
	CreatedAt time.Time `gorm:"index:idx_ai_usage_provider_created,priority:2" json:"createdAt"`
}

func (UsageRecord) TableName() string {
	return "ai_usage_logs"
}

// AlertType names the rolling window an alert was raised for.
type AlertType string

const (
	AlertHourlyCost    AlertType = "hourly_cost"
	AlertDailyCost     AlertType = "daily_cost"
	AlertDailyCalls    AlertType = "daily_calls"
	AlertMonthlyBudget AlertType = "monthly_budget"
)

// UsageAlert is at most one row per provider, alert type and day. Later
// breaches on the same day update CurrentValue and Message in place.
type UsageAlert struct {
	ID               string    `gorm:"type:text;primaryKey" json:"id"`
	Provider         string    `gorm:"type:text;not null;uniqueIndex:idx_ai_usage_alerts_key" json:"provider"`
	AlertType        AlertType `gorm:"type:text;not null;uniqueIndex:idx_ai_usage_alerts_key" json:"alertType"`
	AlertDate        string    `gorm:"type:text;not null;uniqueIndex:idx_ai_usage_alerts_key" json:"alertDate"`
	Threshold        float64   `json:"threshold"`
	CurrentValue     float64   `json:"currentValue"`
	Triggered        bool      `gorm:"default:true" json:"triggered"`
	NotificationSent bool      `gorm:"default:false" json:"notificationSent"`
	Message          string    `gorm:"type:text" json:"message"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName returns the database table name for UsageAlert.
func (UsageAlert) TableName() string {
	return "ai_usage_alerts"
}

// UsageStats aggregates ledger rows matching a filter.
type UsageStats struct {
	TotalCalls       int64   `json:"totalCalls"`
	SuccessCalls     int64   `json:"successCalls"`
	FailedCalls      int64   `json:"failedCalls"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	TotalTokens      int64   `json:"totalTokens"`
	TotalCost        float64 `json:"totalCost"`
	TotalDurationMs  int64   `json:"totalDurationMs"`
	AvgDurationMs    float64 `json:"avgDurationMs"`
}

// DailyUsage is one provider's usage on one calendar day.
type DailyUsage struct {
	Date      string  `json:"date"`
	Provider  string  `json:"provider"`
	Calls     int64   `json:"calls"`
	Failed    int64   `json:"failed"`
	TotalCost float64 `json:"totalCost"`
}

// EndpointUsage is the usage attributed to one logical endpoint.
type EndpointUsage struct {
	Endpoint      string  `json:"endpoint"`
	Calls         int64   `json:"calls"`
	TotalTokens   int64   `json:"totalTokens"`
	TotalCost     float64 `json:"totalCost"`
	AvgDurationMs float64 `json:"avgDurationMs"`
}
