package repository

import (
	"context"
	"errors"

	"github.com/timmy/quizgen/internal/domain"
	"gorm.io/gorm"
)

// QuestionVectorRepository tracks which catalog questions are indexed in
// which Qdrant collection.
type QuestionVectorRepository struct {
	db *gorm.DB
}

// NewQuestionVectorRepository creates a new QuestionVectorRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *QuestionVectorRepository: repository instance bound to db.
func NewQuestionVectorRepository(db *gorm.DB) *QuestionVectorRepository {
	return &QuestionVectorRepository{db: db}
}

// Create inserts a new vector record.
func (r *QuestionVectorRepository) Create(ctx context.Context, vector *domain.QuestionVector) error {
	return r.db.WithContext(ctx).Create(vector).Error
}

// GetByQuestionAndCollection retrieves the vector record of a question in
// a collection.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - questionID: catalog question ID.
//   - collection: Qdrant collection name.
// Returns:
//   - *domain.QuestionVector: matching record if found.
//   - error: ErrNotFound when the question is not indexed there.
func (r *QuestionVectorRepository) GetByQuestionAndCollection(ctx context.Context, questionID, collection string) (*domain.QuestionVector, error) {
	var vector domain.QuestionVector
	if err := r.db.WithContext(ctx).
		Where("question_id = ? AND collection = ?", questionID, collection).
		First(&vector).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &vector, nil
}

// CountByCollection counts the vectors recorded for a collection.
func (r *QuestionVectorRepository) CountByCollection(ctx context.Context, collection string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.QuestionVector{}).
		Where("collection = ? AND status = ?", collection, domain.QuestionVectorStatusActive).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteByQuestionAndCollection removes the vector record of a question.
func (r *QuestionVectorRepository) DeleteByQuestionAndCollection(ctx context.Context, questionID, collection string) error {
	return r.db.WithContext(ctx).
		Where("question_id = ? AND collection = ?", questionID, collection).
		Delete(&domain.QuestionVector{}).Error
}
