package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/repository"
)

// ErrIndexDisabled is returned by similarity search when no question index
// is configured.
var ErrIndexDisabled = errors.New("question index is disabled")

// QuestionIndexer keeps approved catalog questions searchable.
type QuestionIndexer interface {
	Index(ctx context.Context, q *domain.Question) error
	FindSimilar(ctx context.Context, query, chapterID string, topK int) ([]domain.QuestionSearchResult, error)
}

// VectorStore is the subset of the Qdrant repository the index uses.
type VectorStore interface {
	Collection() string
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.QuestionPayload) error
	Search(ctx context.Context, vector []float32, topK int, filters *repository.SearchFilters) ([]repository.SearchResult, error)
}

// QuestionIndexService embeds approved questions and stores them in a
// vector collection.
type QuestionIndexService struct {
	embedder Embedder
	store    VectorStore
	vectors  *repository.QuestionVectorRepository
	catalog  CatalogStore
}

// NewQuestionIndexService wires the question index.
func NewQuestionIndexService(embedder Embedder, store VectorStore, vectors *repository.QuestionVectorRepository, catalog CatalogStore) *QuestionIndexService {
	return &QuestionIndexService{embedder: embedder, store: store, vectors: vectors, catalog: catalog}
}

// generateDeterministicPointID derives the point id from question id and
// collection, so re-indexing a question overwrites its point.
func generateDeterministicPointID(questionID, collection string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+":"+questionID)).String()
}

// embeddingText is what gets embedded for a question: its stem plus the
// options, so near-identical stems with different choices stay apart.
func embeddingText(q *domain.Question) string {
	var b strings.Builder
	b.WriteString(q.QuestionText)
	for _, opt := range q.Options {
		b.WriteString("\n- ")
		b.WriteString(opt)
	}
	return b.String()
}

// Index embeds q and upserts it. Already indexed questions are skipped.
func (s *QuestionIndexService) Index(ctx context.Context, q *domain.Question) error {
	collection := s.store.Collection()
	existing, err := s.vectors.GetByQuestionAndCollection(ctx, q.ID, collection)
	if err == nil && existing.Status == domain.QuestionVectorStatusActive {
		return nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check question vector: %w", err)
	}

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, embeddingText(q))
	if err != nil {
		return fmt.Errorf("failed to embed question %s: %w", q.ID, err)
	}

	pointID := generateDeterministicPointID(q.ID, collection)
	payload := &repository.QuestionPayload{
		QuestionID:   q.ID,
		ChapterID:    q.ChapterID,
		Difficulty:   string(q.Difficulty),
		QuestionText: q.QuestionText,
		Tags:         q.Tags,
	}
	if err := s.store.Upsert(ctx, pointID, vector, payload); err != nil {
		return err
	}

	if existing != nil {
		if err := s.vectors.DeleteByQuestionAndCollection(ctx, q.ID, collection); err != nil {
			return fmt.Errorf("failed to replace question vector: %w", err)
		}
	}
	if err := s.vectors.Create(ctx, &domain.QuestionVector{
		ID:             uuid.New().String(),
		QuestionID:     q.ID,
		Collection:     collection,
		EmbeddingModel: s.embedder.Model(),
		QdrantPointID:  pointID,
		Status:         domain.QuestionVectorStatusActive,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to record question vector: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldChapterID:  q.ChapterID,
		"question_id":          q.ID,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug(ctx, "Indexed catalog question")
	return nil
}

// FindSimilar returns catalog questions similar to query, best first.
func (s *QuestionIndexService) FindSimilar(ctx context.Context, query, chapterID string, topK int) ([]domain.QuestionSearchResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if topK > 50 {
		topK = 50
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filters *repository.SearchFilters
	if chapterID != "" {
		filters = &repository.SearchFilters{ChapterID: chapterID}
	}
	hits, err := s.store.Search(ctx, vector, topK, filters)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.Payload != nil && hit.Payload.QuestionID != "" {
			ids = append(ids, hit.Payload.QuestionID)
		}
	}
	if len(ids) == 0 {
		return []domain.QuestionSearchResult{}, nil
	}

	questions, err := s.catalog.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	results := make([]domain.QuestionSearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Payload == nil {
			continue
		}
		// points whose question was removed from the catalog are skipped
		q, ok := byID[hit.Payload.QuestionID]
		if !ok {
			continue
		}
		results = append(results, domain.QuestionSearchResult{Question: q, Score: hit.Score})
	}
	return results, nil
}
