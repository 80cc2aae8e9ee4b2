package repository

import (
	"context"

	"github.com/timmy/quizgen/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository reads quiz attempts for difficulty recommendations.
type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create inserts an attempt.
func (r *AttemptRepository) Create(ctx context.Context, attempt *domain.QuizAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// RecentCompleted returns up to limit completed attempts of a user, most
// recently completed first.
func (r *AttemptRepository) RecentCompleted(ctx context.Context, userID string, limit int) ([]domain.QuizAttempt, error) {
	var attempts []domain.QuizAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND completed_at IS NOT NULL", userID).
		Order("completed_at DESC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}
