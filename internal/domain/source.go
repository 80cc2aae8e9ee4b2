package domain

import "time"

// SourceType tells the generator where its material comes from.
// Values include SourceTypeAI, SourceTypeUpload, and SourceTypeManual.
type SourceType string

const (
	SourceTypeAI     SourceType = "ai"
	SourceTypeUpload SourceType = "upload"
	SourceTypeManual SourceType = "manual"
)

// Valid reports whether t is an accepted source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeAI, SourceTypeUpload, SourceTypeManual:
		return true
	}
	return false
}

// SourceDocument records study material uploaded to object storage so a
// later job can reference it by key.
type SourceDocument struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	StorageKey  string    `gorm:"type:text;not null;uniqueIndex:idx_source_documents_key" json:"storageKey"`
	FileName    string    `gorm:"type:text" json:"fileName"`
	ContentType string    `gorm:"type:text" json:"contentType"`
	Size        int64     `json:"size"`
	UploadedBy  string    `gorm:"type:text;index:idx_source_documents_uploader" json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName returns the database table name for SourceDocument.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SourceDocument) TableName() string {
	return "source_documents"
}
