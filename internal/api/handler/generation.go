package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/service"
)

// GenerationHandler handles generation jobs and the review queue.
type GenerationHandler struct {
	generation *service.GenerationService
	review     *service.ReviewService
}

// NewGenerationHandler creates a new generation handler.
func NewGenerationHandler(generation *service.GenerationService, review *service.ReviewService) *GenerationHandler {
	return &GenerationHandler{
		generation: generation,
		review:     review,
	}
}

// StartJobRequest is the body of POST /admin/generation/jobs.
type StartJobRequest struct {
	SubjectID     string   `json:"subjectId"`
	ChapterIDs    []string `json:"chapterIds"`
	QuestionCount int      `json:"questionCount"`
	Difficulty    string   `json:"difficulty"`
	SourceContent string   `json:"sourceContent"`
	SourceKey     string   `json:"sourceKey"`
	SourceType    string   `json:"sourceType"`
}

// ReviewRequest is the body of POST /admin/generation/review. Batch
// requests approve every id in QuestionIDs.
type ReviewRequest struct {
	QuestionID  string   `json:"questionId"`
	Action      string   `json:"action"`
	Notes       string   `json:"notes"`
	Batch       bool     `json:"batch"`
	QuestionIDs []string `json:"questionIds"`
}

// StartJob handles POST /api/v1/admin/generation/jobs.
func (h *GenerationHandler) StartJob(c *gin.Context) {
	var req StartJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	job, err := h.generation.StartJob(c.Request.Context(), service.StartJobRequest{
		AdminID:       c.GetHeader(headerAdminID),
		AdminName:     c.GetHeader(headerAdminName),
		SubjectID:     req.SubjectID,
		ChapterIDs:    req.ChapterIDs,
		QuestionCount: req.QuestionCount,
		Difficulty:    domain.Difficulty(strings.ToLower(req.Difficulty)),
		SourceType:    domain.SourceType(req.SourceType),
		SourceContent: req.SourceContent,
		SourceKey:     req.SourceKey,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/admin/generation/jobs. mine=true limits the
// list to the calling admin's jobs.
func (h *GenerationHandler) ListJobs(c *gin.Context) {
	page, limit := pagination(c)
	filter := repository.JobFilter{
		Status: domain.JobStatus(c.Query("status")),
		Page:   page,
		Limit:  limit,
	}
	if c.Query("mine") == "true" {
		filter.AdminID = c.GetHeader(headerAdminID)
	}

	jobs, total, err := h.generation.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: jobs, Total: total, Page: page, Limit: limit})
}

// GetJob handles GET /api/v1/admin/generation/jobs/:id.
func (h *GenerationHandler) GetJob(c *gin.Context) {
	job, err := h.generation.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListItems handles GET /api/v1/admin/generation/questions.
func (h *GenerationHandler) ListItems(c *gin.Context) {
	page, limit := pagination(c)
	items, total, err := h.generation.ListItems(c.Request.Context(), repository.ItemFilter{
		JobID:  c.Query("jobId"),
		Status: domain.ReviewStatus(c.Query("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: items, Total: total, Page: page, Limit: limit})
}

// Review handles POST /api/v1/admin/generation/review.
func (h *GenerationHandler) Review(c *gin.Context) {
	ctx := c.Request.Context()

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	reviewer := c.GetHeader(headerAdminID)

	if req.Batch {
		if len(req.QuestionIDs) == 0 {
			badRequest(c, "questionIds is required for batch review")
			return
		}
		result := h.review.BatchApprove(ctx, req.QuestionIDs, reviewer)
		c.JSON(http.StatusOK, result)
		return
	}

	if req.QuestionID == "" {
		badRequest(c, "questionId is required")
		return
	}

	logger.CtxInfo(ctx, "Review requested: question_id=%s, action=%s, reviewer=%s", req.QuestionID, req.Action, reviewer)
	item, err := h.review.ReviewItem(ctx, req.QuestionID, reviewer, service.ReviewAction(req.Action), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}
