package repository

import (
	"context"
	"errors"

	"github.com/timmy/quizgen/internal/domain"
	"gorm.io/gorm"
)

// SourceDocumentRepository tracks uploaded source material.
type SourceDocumentRepository struct {
	db *gorm.DB
}

// NewSourceDocumentRepository creates a new SourceDocumentRepository.
func NewSourceDocumentRepository(db *gorm.DB) *SourceDocumentRepository {
	return &SourceDocumentRepository{db: db}
}

// Create inserts a document record.
func (r *SourceDocumentRepository) Create(ctx context.Context, doc *domain.SourceDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// GetByKey retrieves a document by storage key, or ErrNotFound.
func (r *SourceDocumentRepository) GetByKey(ctx context.Context, key string) (*domain.SourceDocument, error) {
	var doc domain.SourceDocument
	if err := r.db.WithContext(ctx).First(&doc, "storage_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}
