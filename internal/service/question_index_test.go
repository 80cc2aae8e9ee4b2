package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/repository/repotest"
)

// TestGenerateDeterministicPointID verifies that the same input always produces the same UUID
func TestGenerateDeterministicPointID(t *testing.T) {
	testCases := []struct {
		name       string
		questionID string
		collection string
	}{
		{name: "basic", questionID: "q-1", collection: "questions"},
		{name: "different collection", questionID: "q-1", collection: "questions-v2"},
		{name: "different question", questionID: "q-2", collection: "questions"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id1 := generateDeterministicPointID(tc.questionID, tc.collection)
			id2 := generateDeterministicPointID(tc.questionID, tc.collection)

			if id1 != id2 {
				t.Errorf("point id mismatch: first=%s, second=%s", id1, id2)
			}
			if len(id1) != 36 {
				t.Errorf("invalid UUID length: got %d, want 36", len(id1))
			}
		})
	}
}

// TestGenerateDeterministicPointIDUniqueness verifies that different inputs produce different UUIDs
func TestGenerateDeterministicPointIDUniqueness(t *testing.T) {
	ids := map[string]bool{
		generateDeterministicPointID("q-1", "questions"):    true,
		generateDeterministicPointID("q-2", "questions"):    true,
		generateDeterministicPointID("q-1", "questions-v2"): true,
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 distinct point ids, got %d", len(ids))
	}
}

type fakeEmbedder struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (e *fakeEmbedder) Model() string { return "fake-embed" }

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return e.Embed(ctx, query)
}

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type memoryVectorStore struct {
	mu     sync.Mutex
	points map[string]*repository.QuestionPayload
}

func newMemoryVectorStore() *memoryVectorStore {
	return &memoryVectorStore{points: make(map[string]*repository.QuestionPayload)}
}

func (m *memoryVectorStore) Collection() string { return "questions" }

func (m *memoryVectorStore) Upsert(_ context.Context, pointID string, _ []float32, payload *repository.QuestionPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[pointID] = payload
	return nil
}

func (m *memoryVectorStore) Search(_ context.Context, _ []float32, topK int, filters *repository.SearchFilters) ([]repository.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []repository.SearchResult
	for id, p := range m.points {
		if filters != nil && filters.ChapterID != "" && p.ChapterID != filters.ChapterID {
			continue
		}
		results = append(results, repository.SearchResult{ID: id, Score: 0.9, Payload: p})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Payload.QuestionID < results[j].Payload.QuestionID })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *memoryVectorStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

func TestQuestionIndexAndFindSimilar(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	catalog := repository.NewCatalogRepository(db)
	vectors := repository.NewQuestionVectorRepository(db)
	embedder := &fakeEmbedder{}
	store := newMemoryVectorStore()
	index := NewQuestionIndexService(embedder, store, vectors, catalog)

	questions := []*domain.Question{
		{ID: "q-1", ChapterID: "algebra-1", QuestionText: "What is x if x + 1 = 2?", Options: domain.StringArray{"0", "1", "2", "3"}, CorrectAnswer: "1", Difficulty: domain.DifficultyEasy},
		{ID: "q-2", ChapterID: "geometry-1", QuestionText: "How many sides does a hexagon have?", Options: domain.StringArray{"5", "6", "7", "8"}, CorrectAnswer: "6", Difficulty: domain.DifficultyEasy},
	}
	for _, q := range questions {
		require.NoError(t, catalog.CreateQuestion(ctx, q))
		require.NoError(t, index.Index(ctx, q))
	}

	// re-indexing is a no-op
	require.NoError(t, index.Index(ctx, questions[0]))
	assert.Equal(t, 2, embedder.callCount())
	assert.Equal(t, 2, store.size())

	count, err := vectors.CountByCollection(ctx, "questions")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	results, err := index.FindSimilar(ctx, "solve for x", "algebra-1", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "q-1", results[0].ID)
	assert.Equal(t, float32(0.9), results[0].Score)

	results, err = index.FindSimilar(ctx, "anything", "", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQuestionIndexEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	index := NewQuestionIndexService(&fakeEmbedder{err: errors.New("quota")}, newMemoryVectorStore(),
		repository.NewQuestionVectorRepository(db), repository.NewCatalogRepository(db))

	err := index.Index(ctx, &domain.Question{ID: "q-1", QuestionText: "What is 1 + 1?"})
	assert.ErrorContains(t, err, "quota")

	_, err = index.FindSimilar(ctx, "x", "", 3)
	assert.ErrorContains(t, err, "quota")
}
