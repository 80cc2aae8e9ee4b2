package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/quizgen/internal/domain"
	"gorm.io/gorm"
)

// ErrAlreadyReviewed is returned when a review targets an item that has
// left pending_review.
var ErrAlreadyReviewed = errors.New("item already reviewed")

// ItemFilter narrows List. Zero values match everything.
type ItemFilter struct {
	JobID  string
	Status domain.ReviewStatus
	Page   int
	Limit  int
}

// ReviewUpdate is the terminal review state applied to an item.
type ReviewUpdate struct {
	Status     domain.ReviewStatus
	ReviewerID string
	Notes      string
	ReviewedAt time.Time
	// Question is created and linked when Status is approved.
	Question *domain.Question
}

// GeneratedItemRepository handles generated questions and their
// validation records.
type GeneratedItemRepository struct {
	db *gorm.DB
}

// NewGeneratedItemRepository creates a new GeneratedItemRepository.
func NewGeneratedItemRepository(db *gorm.DB) *GeneratedItemRepository {
	return &GeneratedItemRepository{db: db}
}

// CreateWithValidation inserts an item and its validation record in one
// transaction.
func (r *GeneratedItemRepository) CreateWithValidation(ctx context.Context, item *domain.GeneratedItem, validation *domain.QuestionValidation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		if validation == nil {
			return nil
		}
		validation.GeneratedQuestionID = item.ID
		return tx.Create(validation).Error
	})
}

// GetByID retrieves an item by its ID, or ErrNotFound.
func (r *GeneratedItemRepository) GetByID(ctx context.Context, id string) (*domain.GeneratedItem, error) {
	var item domain.GeneratedItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// List returns one page of items, newest first, and the total match count.
func (r *GeneratedItemRepository) List(ctx context.Context, filter ItemFilter) ([]domain.GeneratedItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.GeneratedItem{})
	if filter.JobID != "" {
		query = query.Where("job_id = ?", filter.JobID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filter.Page, filter.Limit)
	var items []domain.GeneratedItem
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CountByJob counts the items persisted for a job.
func (r *GeneratedItemRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.GeneratedItem{}).
		Where("job_id = ?", jobID).Count(&count).Error
	return count, err
}

// GetValidation returns the audit record written with the item.
func (r *GeneratedItemRepository) GetValidation(ctx context.Context, itemID string) (*domain.QuestionValidation, error) {
	var v domain.QuestionValidation
	if err := r.db.WithContext(ctx).First(&v, "generated_question_id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// ApplyReview moves a pending_review item to its terminal review state.
// The catalog question (on approve), the item update and the job counter
// increment commit together or not at all.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: the item as read by the caller; JobID selects the counter row.
//   - update: target state; update.Question is required for approve.
// Returns:
//   - error: ErrAlreadyReviewed if the item left pending_review meanwhile.
func (r *GeneratedItemRepository) ApplyReview(ctx context.Context, item *domain.GeneratedItem, update ReviewUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"status":       update.Status,
			"reviewed_by":  update.ReviewerID,
			"review_notes": update.Notes,
			"reviewed_at":  update.ReviewedAt,
		}

		if update.Status == domain.ReviewStatusApproved {
			if update.Question == nil {
				return errors.New("approve requires a catalog question")
			}
			if err := tx.Create(update.Question).Error; err != nil {
				return err
			}
			fields["final_question_id"] = update.Question.ID
		}

		result := tx.Model(&domain.GeneratedItem{}).
			Where("id = ? AND status = ?", item.ID, domain.ReviewStatusPending).
			Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyReviewed
		}

		var counter string
		switch update.Status {
		case domain.ReviewStatusApproved:
			counter = "total_approved"
		case domain.ReviewStatusRejected:
			counter = "total_rejected"
		default:
			return nil
		}
		return tx.Model(&domain.GenerationJob{}).
			Where("id = ?", item.JobID).
			UpdateColumn(counter, gorm.Expr(counter+" + ?", 1)).Error
	})
}
