package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/quizgen/internal/service"
)

// QuestionHandler serves learner-facing catalog helpers.
type QuestionHandler struct {
	index    service.QuestionIndexer
	adaptive *service.AdaptiveService
}

// NewQuestionHandler creates a new question handler. index may be nil when
// the question index is disabled.
func NewQuestionHandler(index service.QuestionIndexer, adaptive *service.AdaptiveService) *QuestionHandler {
	return &QuestionHandler{index: index, adaptive: adaptive}
}

// RecommendedDifficulty handles GET /api/v1/users/:id/recommended-difficulty.
func (h *QuestionHandler) RecommendedDifficulty(c *gin.Context) {
	userID := c.Param("id")
	difficulty, err := h.adaptive.RecommendDifficulty(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":     userID,
		"difficulty": difficulty,
	})
}

// Similar handles GET /api/v1/questions/similar.
func (h *QuestionHandler) Similar(c *gin.Context) {
	if h.index == nil {
		respondError(c, service.ErrIndexDisabled)
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		badRequest(c, "Query parameter 'q' is required")
		return
	}
	limit, ok := intQuery(c, "limit", 10)
	if !ok {
		badRequest(c, "limit must be a number")
		return
	}

	results, err := h.index.FindSimilar(c.Request.Context(), query, c.Query("chapterId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"results": results,
	})
}
