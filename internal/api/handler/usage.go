package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/service"
)

const dateLayout = "2006-01-02"

// UsageHandler exposes the AI usage ledger to admins.
type UsageHandler struct {
	usage *service.UsageService
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(usage *service.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// BudgetResponse is the monthly budget position of a provider, or of all
// providers when Provider is empty.
type BudgetResponse struct {
	Provider      string  `json:"provider,omitempty"`
	MonthlyBudget float64 `json:"monthlyBudget"`
	WithinBudget  bool    `json:"withinBudget"`
	Remaining     float64 `json:"remaining"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. A bare end
// date covers that whole day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func usageFilter(c *gin.Context) (repository.UsageFilter, error) {
	start, err := parseDate(c.Query("startDate"), false)
	if err != nil {
		return repository.UsageFilter{}, err
	}
	end, err := parseDate(c.Query("endDate"), true)
	if err != nil {
		return repository.UsageFilter{}, err
	}
	return repository.UsageFilter{
		Provider: c.Query("provider"),
		UserID:   c.Query("userId"),
		Endpoint: c.Query("endpoint"),
		Start:    start,
		End:      end,
	}, nil
}

// Stats handles GET /api/v1/admin/ai-usage/stats.
func (h *UsageHandler) Stats(c *gin.Context) {
	filter, err := usageFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	stats, err := h.usage.GetStats(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Daily handles GET /api/v1/admin/ai-usage/daily.
func (h *UsageHandler) Daily(c *gin.Context) {
	days, ok := intQuery(c, "days", 30)
	if !ok || days < 1 || days > 366 {
		badRequest(c, "days must be between 1 and 366")
		return
	}

	rows, err := h.usage.GetDailyBreakdown(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "items": rows})
}

// Endpoints handles GET /api/v1/admin/ai-usage/endpoints.
func (h *UsageHandler) Endpoints(c *gin.Context) {
	filter, err := usageFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	rows, err := h.usage.GetEndpointBreakdown(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// Budget handles GET /api/v1/admin/ai-usage/budget.
func (h *UsageHandler) Budget(c *gin.Context) {
	ctx := c.Request.Context()
	provider := c.Query("provider")

	within, err := h.usage.IsWithinBudget(ctx, provider)
	if err != nil {
		respondError(c, err)
		return
	}
	remaining, err := h.usage.GetRemainingBudget(ctx, provider)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, BudgetResponse{
		Provider:      provider,
		MonthlyBudget: h.usage.MonthlyBudget(),
		WithinBudget:  within,
		Remaining:     remaining,
	})
}

// Alerts handles GET /api/v1/admin/ai-usage/alerts.
func (h *UsageHandler) Alerts(c *gin.Context) {
	days, ok := intQuery(c, "days", 7)
	if !ok || days < 1 || days > 90 {
		badRequest(c, "days must be between 1 and 90")
		return
	}

	alerts, err := h.usage.ListAlerts(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": alerts})
}
