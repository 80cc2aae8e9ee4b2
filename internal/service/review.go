package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/metrics"
	"github.com/timmy/quizgen/internal/repository"
)

var (
	// ErrItemNotFound is returned for an unknown generated item.
	ErrItemNotFound = errors.New("generated question not found")
	// ErrItemAlreadyReviewed is returned when an item already left
	// pending_review.
	ErrItemAlreadyReviewed = errors.New("generated question already reviewed")
	// ErrInvalidReviewAction is returned for an action other than approve,
	// reject or needs_revision.
	ErrInvalidReviewAction = errors.New("action must be approve, reject or needs_revision")
)

// ReviewAction is a reviewer's decision on a generated item.
type ReviewAction string

const (
	ReviewApprove       ReviewAction = "approve"
	ReviewReject        ReviewAction = "reject"
	ReviewNeedsRevision ReviewAction = "needs_revision"
)

// catalogSourceGenerated marks catalog questions created from approved
// generated items.
const catalogSourceGenerated = "ai_generated"

func (a ReviewAction) status() (domain.ReviewStatus, bool) {
	switch a {
	case ReviewApprove:
		return domain.ReviewStatusApproved, true
	case ReviewReject:
		return domain.ReviewStatusRejected, true
	case ReviewNeedsRevision:
		return domain.ReviewStatusNeedsRevision, true
	}
	return "", false
}

// BatchFailure is one item a batch approval could not apply.
type BatchFailure struct {
	ItemID string `json:"questionId"`
	Error  string `json:"error"`
}

// BatchResult summarizes a batch approval.
type BatchResult struct {
	Approved int            `json:"approved"`
	Total    int            `json:"total"`
	Failed   []BatchFailure `json:"failed"`
}

// ReviewService applies reviewer decisions to generated items.
type ReviewService struct {
	items   *repository.GeneratedItemRepository
	index   QuestionIndexer
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewReviewService creates a ReviewService. index and m may be nil.
func NewReviewService(items *repository.GeneratedItemRepository, index QuestionIndexer, m *metrics.Metrics) *ReviewService {
	return &ReviewService{items: items, index: index, metrics: m, now: time.Now}
}

// ReviewItem moves a pending_review item to the state matching action.
// Approving also creates the catalog question and links it to the item in
// the same transaction, then indexes it for similarity search.
func (s *ReviewService) ReviewItem(ctx context.Context, itemID, reviewerID string, action ReviewAction, notes string) (*domain.GeneratedItem, error) {
	status, ok := action.status()
	if !ok {
		return nil, ErrInvalidReviewAction
	}
	ctx = logger.WithField(ctx, logger.FieldItemID, itemID)

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to load generated question: %w", err)
	}
	if item.Status != domain.ReviewStatusPending {
		return nil, ErrItemAlreadyReviewed
	}

	reviewedAt := s.now().UTC()
	update := repository.ReviewUpdate{
		Status:     status,
		ReviewerID: reviewerID,
		Notes:      strings.TrimSpace(notes),
		ReviewedAt: reviewedAt,
	}
	if status == domain.ReviewStatusApproved {
		update.Question = catalogQuestion(item, reviewedAt)
	}

	if err := s.items.ApplyReview(ctx, item, update); err != nil {
		if errors.Is(err, repository.ErrAlreadyReviewed) {
			return nil, ErrItemAlreadyReviewed
		}
		return nil, fmt.Errorf("failed to apply review: %w", err)
	}

	item.Status = status
	item.ReviewedBy = update.ReviewerID
	item.ReviewNotes = update.Notes
	item.ReviewedAt = &reviewedAt
	if update.Question != nil {
		item.FinalQuestionID = &update.Question.ID
	}
	s.metrics.ItemReviewed(string(status))

	logger.With(logger.Fields{
		logger.FieldItemID: itemID,
		logger.FieldJobID:  item.JobID,
		logger.FieldStatus: status,
		"reviewer":         reviewerID,
	}).Info(ctx, "Generated question reviewed")

	if update.Question != nil && s.index != nil {
		if err := s.index.Index(ctx, update.Question); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to index approved question")
		}
	}
	return item, nil
}

func catalogQuestion(item *domain.GeneratedItem, createdAt time.Time) *domain.Question {
	difficulty := item.Difficulty
	if !difficulty.Valid() {
		difficulty = domain.DifficultyMedium
	}
	return &domain.Question{
		ID:            uuid.New().String(),
		ChapterID:     item.ChapterID,
		QuestionText:  item.QuestionText,
		Options:       item.Options,
		CorrectAnswer: item.CorrectAnswer,
		Explanation:   item.Explanation,
		Difficulty:    difficulty,
		Tags:          item.Tags,
		Source:        catalogSourceGenerated,
		CreatedAt:     createdAt,
	}
}

// BatchApprove approves each item independently. Failures are collected
// and do not stop the remaining items.
func (s *ReviewService) BatchApprove(ctx context.Context, itemIDs []string, reviewerID string) BatchResult {
	result := BatchResult{Total: len(itemIDs), Failed: []BatchFailure{}}
	for _, id := range itemIDs {
		if _, err := s.ReviewItem(ctx, id, reviewerID, ReviewApprove, ""); err != nil {
			result.Failed = append(result.Failed, BatchFailure{ItemID: id, Error: err.Error()})
			continue
		}
		result.Approved++
	}

	logger.With(logger.Fields{
		logger.FieldCount: result.Total,
		"approved":        result.Approved,
		"failed":          len(result.Failed),
	}).Info(ctx, "Batch approval finished")
	return result
}
