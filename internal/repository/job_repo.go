package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/quizgen/internal/domain"
	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	AdminID string
	Status  domain.JobStatus
	Page    int
	Limit   int
}

// GenerationJobRepository handles question generation job records.
// Status changes are conditional on the current status so that a
// terminal job is never rewritten.
type GenerationJobRepository struct {
	db *gorm.DB
}

// NewGenerationJobRepository creates a new GenerationJobRepository.
func NewGenerationJobRepository(db *gorm.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db}
}

// Create inserts a new job record.
func (r *GenerationJobRepository) Create(ctx context.Context, job *domain.GenerationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.GenerationJob: job record if found.
//   - error: ErrNotFound when no job has the id.
func (r *GenerationJobRepository) GetByID(ctx context.Context, id string) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// List returns one page of jobs, newest first, and the total match count.
func (r *GenerationJobRepository) List(ctx context.Context, filter JobFilter) ([]domain.GenerationJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.GenerationJob{})
	if filter.AdminID != "" {
		query = query.Where("admin_id = ?", filter.AdminID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filter.Page, filter.Limit)
	var jobs []domain.GenerationJob
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// MarkProcessing claims a pending job. It returns false when the job was
// not pending anymore.
func (r *GenerationJobRepository) MarkProcessing(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.GenerationJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"started_at": startedAt,
			"progress":   0,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateProgress records progress of a processing job. Progress never
// moves backwards.
func (r *GenerationJobRepository) UpdateProgress(ctx context.Context, id string, progress, totalGenerated int) error {
	return r.db.WithContext(ctx).Model(&domain.GenerationJob{}).
		Where("id = ? AND status = ? AND progress <= ?", id, domain.JobStatusProcessing, progress).
		Updates(map[string]interface{}{
			"progress":        progress,
			"total_generated": totalGenerated,
		}).Error
}

// MarkCompleted moves a processing job to completed with progress 100.
// It returns false when the job was not processing anymore.
func (r *GenerationJobRepository) MarkCompleted(ctx context.Context, id string, totalGenerated int, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.GenerationJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":          domain.JobStatusCompleted,
			"progress":        100,
			"total_generated": totalGenerated,
			"completed_at":    completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed moves a processing job to failed, keeping message verbatim.
// Pending jobs cannot fail; they have to be claimed first.
func (r *GenerationJobRepository) MarkFailed(ctx context.Context, id, message string, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.GenerationJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"error_message": message,
			"completed_at":  completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListPendingIDs returns the ids of pending jobs, oldest first.
func (r *GenerationJobRepository) ListPendingIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.GenerationJob{}).
		Where("status = ?", domain.JobStatusPending).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// pageBounds turns a 1-based page and a limit into LIMIT/OFFSET, with a
// default of 20 and a cap of 100 rows.
func pageBounds(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}
