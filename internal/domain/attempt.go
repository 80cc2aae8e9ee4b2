package domain

import "time"

// QuizAttempt is a learner's attempt at a quiz. Only attempts with a
// CompletedAt stamp count towards difficulty recommendations.
type QuizAttempt struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	UserID      string     `gorm:"type:text;not null;index:idx_quiz_attempts_user" json:"userId"`
	Score       int        `json:"score"`
	Total       int        `json:"total"`
	CompletedAt *time.Time `gorm:"index:idx_quiz_attempts_completed" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}
