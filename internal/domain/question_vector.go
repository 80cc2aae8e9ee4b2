package domain

import "time"

// QuestionVector links a catalog question to its point in a Qdrant
// collection, so re-approval or re-indexing can reuse the same point id.
type QuestionVector struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	QuestionID     string    `gorm:"type:text;not null;uniqueIndex:idx_question_vectors_question_collection" json:"question_id"`
	Collection     string    `gorm:"type:text;not null;uniqueIndex:idx_question_vectors_question_collection" json:"collection"`
	EmbeddingModel string    `gorm:"type:text;not null" json:"embedding_model"`
	QdrantPointID  string    `gorm:"type:text;not null" json:"qdrant_point_id"`
	Status         string    `gorm:"type:text;default:active" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func (QuestionVector) TableName() string {
	return "question_vectors"
}

const (
	QuestionVectorStatusActive  = "active"
	QuestionVectorStatusDeleted = "deleted"
)
