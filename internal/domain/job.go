package domain

import "time"

// JobStatus represents the status of a question generation job.
// Transitions are one-directional: pending -> processing -> completed|failed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Difficulty is the difficulty level of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// GenerationJob is one bulk question-generation request spanning one or
// more chapters. The processing task owns every mutation after creation.
type GenerationJob struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	AdminID        string      `gorm:"type:text;not null;index:idx_generation_jobs_admin" json:"adminId"`
	AdminName      string      `gorm:"type:text" json:"adminName"`
	SubjectID      string      `gorm:"type:text" json:"subjectId,omitempty"`
	ChapterIDs     StringArray `gorm:"type:text;not null" json:"chapterIds"`
	QuestionCount  int         `gorm:"not null" json:"questionCount"`
	Difficulty     Difficulty  `gorm:"type:text" json:"difficulty,omitempty"`
	SourceType     SourceType  `gorm:"type:text;not null" json:"sourceType"`
	SourceContent  string      `gorm:"type:text" json:"sourceContent,omitempty"`
	SourceKey      string      `gorm:"type:text" json:"sourceKey,omitempty"`
	Status         JobStatus   `gorm:"type:text;index:idx_generation_jobs_status;default:pending" json:"status"`
	Progress       int         `gorm:"default:0" json:"progress"`
	TotalGenerated int         `gorm:"default:0" json:"totalGenerated"`
	TotalApproved  int         `gorm:"default:0" json:"totalApproved"`
	TotalRejected  int         `gorm:"default:0" json:"totalRejected"`
	ErrorMessage   string      `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	StartedAt      *time.Time  `json:"startedAt,omitempty"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// TableName returns the database table name for GenerationJob.
func (GenerationJob) TableName() string {
	return "question_generation_jobs"
}
