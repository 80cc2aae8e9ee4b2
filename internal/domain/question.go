package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Subject groups chapters in the catalog.
type Subject struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Subject) TableName() string {
	return "subjects"
}

// Chapter is the unit generation work is split by.
type Chapter struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	SubjectID string    `gorm:"type:text;not null;index:idx_chapters_subject" json:"subjectId"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Chapter) TableName() string {
	return "chapters"
}

// ChapterInfo is the chapter context a generation prompt needs.
type ChapterInfo struct {
	ID          string
	Name        string
	SubjectName string
}

// Question is a live catalog question. Generated items become Questions
// when approved.
type Question struct {
	ID            string      `gorm:"type:text;primaryKey" json:"id"`
	ChapterID     string      `gorm:"type:text;not null;index:idx_questions_chapter" json:"chapterId"`
	QuestionText  string      `gorm:"type:text;not null" json:"questionText"`
	Options       StringArray `gorm:"type:text;not null" json:"options"`
	CorrectAnswer string      `gorm:"type:text;not null" json:"correctAnswer"`
	Explanation   string      `gorm:"type:text" json:"explanation,omitempty"`
	Difficulty    Difficulty  `gorm:"type:text;default:medium" json:"difficulty"`
	Tags          StringArray `gorm:"type:text" json:"tags"`
	Source        string      `gorm:"type:text" json:"source,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// TableName returns the database table name for Question.
func (Question) TableName() string {
	return "questions"
}

// QuestionSearchResult is a catalog question with a similarity score.
type QuestionSearchResult struct {
	Question
	Score float32 `json:"score"`
}

// ReviewStatus is the review state of a generated item.
type ReviewStatus string

const (
	ReviewStatusPending       ReviewStatus = "pending_review"
	ReviewStatusApproved      ReviewStatus = "approved"
	ReviewStatusRejected      ReviewStatus = "rejected"
	ReviewStatusNeedsRevision ReviewStatus = "needs_revision"
)

// GeneratedItem is one candidate question produced by a job and awaiting
// review. Status approved implies FinalQuestionID is set.
type GeneratedItem struct {
	ID              string       `gorm:"type:text;primaryKey" json:"id"`
	JobID           string       `gorm:"type:text;not null;index:idx_generated_questions_job" json:"jobId"`
	ChapterID       string       `gorm:"type:text;not null" json:"chapterId"`
	QuestionText    string       `gorm:"type:text;not null" json:"questionText"`
	Options         StringArray  `gorm:"type:text;not null" json:"options"`
	CorrectAnswer   string       `gorm:"type:text;not null" json:"correctAnswer"`
	Explanation     string       `gorm:"type:text" json:"explanation,omitempty"`
	Difficulty      Difficulty   `gorm:"type:text;default:medium" json:"difficulty"`
	Tags            StringArray  `gorm:"type:text" json:"tags"`
	QualityScore    float64      `gorm:"not null" json:"qualityScore"`
	Status          ReviewStatus `gorm:"type:text;index:idx_generated_questions_status;default:pending_review" json:"status"`
	ReviewedBy      string       `gorm:"type:text" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time   `json:"reviewedAt,omitempty"`
	ReviewNotes     string       `gorm:"type:text" json:"reviewNotes,omitempty"`
	FinalQuestionID *string      `gorm:"type:text" json:"finalQuestionId,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

func (GeneratedItem) TableName() string {
	return "generated_questions"
}

// ValidationStatus summarizes how many issues a validation found.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationWarning ValidationStatus = "warning"
	ValidationFailed  ValidationStatus = "failed"
)

// ValidationTypeAICheck marks the automatic structural check run at
// generation time.
const ValidationTypeAICheck = "ai_check"

// QuestionValidation is the audit record kept alongside a generated item.
type QuestionValidation struct {
	ID                  string           `gorm:"type:text;primaryKey" json:"id"`
	GeneratedQuestionID string           `gorm:"type:text;not null;index:idx_question_validations_item" json:"generatedQuestionId"`
	ValidationType      string           `gorm:"type:text;not null" json:"validationType"`
	Status              ValidationStatus `gorm:"type:text;not null" json:"status"`
	Score               float64          `json:"score"`
	Issues              datatypes.JSON   `json:"issues"`
	Suggestions         datatypes.JSON   `json:"suggestions"`
	CreatedAt           time.Time        `json:"createdAt"`
}

func (QuestionValidation) TableName() string {
	return "question_validations"
}
