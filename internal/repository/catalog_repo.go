package repository

import (
	"context"
	"errors"

	"github.com/timmy/quizgen/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository reads and writes the live question catalog.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindChapter returns the chapter with its subject name, or nil when the
// chapter does not exist.
func (r *CatalogRepository) FindChapter(ctx context.Context, id string) (*domain.ChapterInfo, error) {
	var row struct {
		ID          string
		Name        string
		SubjectName string
	}
	err := r.db.WithContext(ctx).
		Table("chapters").
		Select("chapters.id, chapters.name, subjects.name AS subject_name").
		Joins("LEFT JOIN subjects ON subjects.id = chapters.subject_id").
		Where("chapters.id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.ChapterInfo{ID: row.ID, Name: row.Name, SubjectName: row.SubjectName}, nil
}

// ListQuestionTexts returns the text of every catalog question in a
// chapter, for duplicate checks.
func (r *CatalogRepository) ListQuestionTexts(ctx context.Context, chapterID string) ([]string, error) {
	var texts []string
	err := r.db.WithContext(ctx).Model(&domain.Question{}).
		Where("chapter_id = ?", chapterID).
		Pluck("question_text", &texts).Error
	return texts, err
}

// CreateQuestion inserts a catalog question.
func (r *CatalogRepository) CreateQuestion(ctx context.Context, q *domain.Question) error {
	return r.db.WithContext(ctx).Create(q).Error
}

// GetQuestion retrieves a catalog question, or ErrNotFound.
func (r *CatalogRepository) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	var q domain.Question
	if err := r.db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

// GetQuestionsByIDs returns the questions for ids in no particular order.
func (r *CatalogRepository) GetQuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var questions []domain.Question
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error
	return questions, err
}

// UpsertSubject creates or renames a subject.
func (r *CatalogRepository) UpsertSubject(ctx context.Context, s *domain.Subject) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(s).Error
}

// UpsertChapter creates or renames a chapter.
func (r *CatalogRepository) UpsertChapter(ctx context.Context, c *domain.Chapter) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subject_id", "name"}),
	}).Create(c).Error
}
