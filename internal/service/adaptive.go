package service

import (
	"context"
	"fmt"

	"github.com/timmy/quizgen/internal/domain"
)

const recentAttemptWindow = 10

// AttemptStore reads a learner's completed quiz attempts.
type AttemptStore interface {
	RecentCompleted(ctx context.Context, userID string, limit int) ([]domain.QuizAttempt, error)
}

// AdaptiveService recommends a difficulty from recent quiz accuracy.
type AdaptiveService struct {
	attempts AttemptStore
}

func NewAdaptiveService(attempts AttemptStore) *AdaptiveService {
	return &AdaptiveService{attempts: attempts}
}

// RecommendDifficulty averages the accuracy of the user's last ten
// completed attempts: hard from 0.8, medium from 0.6, easy below. Users
// without history get medium.
func (s *AdaptiveService) RecommendDifficulty(ctx context.Context, userID string) (domain.Difficulty, error) {
	attempts, err := s.attempts.RecentCompleted(ctx, userID, recentAttemptWindow)
	if err != nil {
		return "", fmt.Errorf("failed to load quiz attempts: %w", err)
	}
	return DifficultyForAttempts(attempts), nil
}

// DifficultyForAttempts maps the mean score/total accuracy of attempts to
// a difficulty. Attempts without questions are ignored.
func DifficultyForAttempts(attempts []domain.QuizAttempt) domain.Difficulty {
	var sum float64
	n := 0
	for _, a := range attempts {
		if a.Total <= 0 {
			continue
		}
		sum += float64(a.Score) / float64(a.Total)
		n++
	}
	if n == 0 {
		return domain.DifficultyMedium
	}

	switch accuracy := sum / float64(n); {
	case accuracy >= 0.8:
		return domain.DifficultyHard
	case accuracy >= 0.6:
		return domain.DifficultyMedium
	default:
		return domain.DifficultyEasy
	}
}
