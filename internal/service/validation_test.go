package service

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/quizgen/internal/domain"
)

func goodQuestion() RawQuestion {
	return RawQuestion{
		Question:      "Which value of x satisfies 2x + 3 = 11?",
		Options:       []string{"2", "4", "6", "8"},
		CorrectAnswer: "4",
		Explanation:   "Subtract 3 from both sides to get 2x = 8, then divide both sides by 2 to get x = 4.",
		Difficulty:    "easy",
		Tags:          []string{"linear-equations", " "},
	}
}

func TestValidateItemDropsStructurallyInvalidItems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *RawQuestion)
	}{
		{"short question", func(q *RawQuestion) { q.Question = "2+2?" }},
		{"three options", func(q *RawQuestion) { q.Options = []string{"2", "4", "6"} }},
		{"five options", func(q *RawQuestion) { q.Options = append(q.Options, "10") }},
		{"repeated option", func(q *RawQuestion) { q.Options = []string{"2", "4", "4", "8"} }},
		{"repeated option after trimming", func(q *RawQuestion) { q.Options = []string{"2", " 4", "4 ", "8"} }},
		{"answer not among options", func(q *RawQuestion) { q.CorrectAnswer = "5" }},
		{"missing answer", func(q *RawQuestion) { q.CorrectAnswer = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := goodQuestion()
			tt.mutate(&q)
			assert.Nil(t, ValidateItem(q, nil, domain.DifficultyMedium))
		})
	}
}

func TestValidateItemCleanQuestionPasses(t *testing.T) {
	item := ValidateItem(goodQuestion(), []string{"What is the capital of France?"}, "")
	require.NotNil(t, item)

	assert.Equal(t, domain.ValidationPassed, item.Status)
	assert.Empty(t, item.Issues)
	assert.Empty(t, item.Suggestions)
	assert.Equal(t, 1.0, item.QualityScore)
	assert.Equal(t, domain.DifficultyEasy, item.Difficulty)
	assert.Equal(t, []string{"linear-equations"}, item.Tags)
}

func TestValidateItemSoftIssuesKeepItem(t *testing.T) {
	q := goodQuestion()
	q.Question = "Solve 2x + 3 = 11 for x"
	q.Explanation = ""

	item := ValidateItem(q, nil, domain.DifficultyHard)
	require.NotNil(t, item)
	assert.Len(t, item.Suggestions, 2)
	assert.Empty(t, item.Issues)
	assert.Equal(t, domain.ValidationWarning, item.Status)
	// 1 - 2*0.05 - 0.1 (explanation under 50 chars)
	assert.InDelta(t, 0.8, item.QualityScore, 1e-9)
}

func TestValidateItemCaseOnlyOptionsAreDistinct(t *testing.T) {
	q := goodQuestion()
	q.Question = "Which notation is used for the acidity scale?"
	q.Options = []string{"pH", "PH", "pOH", "Ka"}
	q.CorrectAnswer = "pH"

	item := ValidateItem(q, nil, domain.DifficultyMedium)
	require.NotNil(t, item)
	assert.Equal(t, []string{"pH", "PH", "pOH", "Ka"}, item.Options)
	assert.Empty(t, item.Issues)
	assert.Equal(t, []string{"Some options differ only by letter case"}, item.Suggestions)
	assert.Equal(t, domain.ValidationWarning, item.Status)
}

func TestValidateItemDuplicateDetection(t *testing.T) {
	q := goodQuestion()

	exact := ValidateItem(q, []string{"  WHICH value of x satisfies 2x + 3 = 11?  "}, "")
	require.NotNil(t, exact)
	assert.Equal(t, 1.0, exact.Similarity)
	require.Len(t, exact.Issues, 1)
	assert.Contains(t, exact.Issues[0], "duplicate")
	assert.InDelta(t, 0.85, exact.QualityScore, 1e-9)

	distinct := ValidateItem(q, []string{"Which city is the capital of France?"}, "")
	require.NotNil(t, distinct)
	assert.Empty(t, distinct.Issues)
	assert.Less(t, distinct.Similarity, 0.8)
}

func TestValidateItemDropsWithMoreThanTwoHardIssues(t *testing.T) {
	long := "Which of the following " + strings.Repeat("long ", 200) + "statements is true?"
	q := RawQuestion{
		Question:      long,
		Options:       []string{"", "A", "B", "C"},
		CorrectAnswer: "A",
		Explanation:   "Because the statement A is the only one that holds in every case.",
	}

	assert.Nil(t, ValidateItem(q, []string{long}, ""), "duplicate + blank option + too long")

	kept := ValidateItem(q, nil, "")
	require.NotNil(t, kept, "two hard issues are tolerated")
	assert.Len(t, kept.Issues, 2)
	assert.InDelta(t, 0.7, kept.QualityScore, 1e-9)
}

func TestValidateItemLowestScoringKeptItem(t *testing.T) {
	q := RawQuestion{
		Question:      "Pick the prime",
		Options:       []string{"", "4", "6", "7"},
		CorrectAnswer: "7",
	}
	item := ValidateItem(q, []string{"pick the prime"}, "")
	require.NotNil(t, item)
	// 1 - 2*0.15 - 2*0.05 - 0.1 (short question) - 0.1 (short explanation)
	assert.InDelta(t, 0.4, item.QualityScore, 1e-9)
	assert.Equal(t, domain.ValidationFailed, item.Status)
	assert.Equal(t, domain.DifficultyMedium, item.Difficulty)
}

func TestValidateItemUsesGeneratorScore(t *testing.T) {
	q := goodQuestion()
	score := 0.72
	q.QualityScore = &score

	item := ValidateItem(q, nil, "")
	require.NotNil(t, item)
	assert.Equal(t, 0.72, item.QualityScore)
	assert.Equal(t, 1.0, item.ComputedScore)

	tooHigh := 3.0
	q.QualityScore = &tooHigh
	assert.Equal(t, 1.0, ValidateItem(q, nil, "").QualityScore)
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"a b c", "a b c", 1},
		{"a b c", "d e f", 0},
		{"a b c d", "a b c e", 3.0 / 5.0},
		{"a a b", "a b", 1},
		{"", "", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, JaccardSimilarity(tt.a, tt.b), 1e-9, "%q vs %q", tt.a, tt.b)
	}
}

func TestRawQuestionAcceptsAlternateKeys(t *testing.T) {
	var q RawQuestion
	err := json.Unmarshal([]byte(`{
		"question_text": "What is 3 * 3?",
		"choices": ["6", "9", "12", "3"],
		"correct_answer": "9",
		"explanation": "Three groups of three.",
		"quality_score": 0.9,
		"tags": "not-a-list"
	}`), &q)
	require.NoError(t, err)

	assert.Equal(t, "What is 3 * 3?", q.Question)
	assert.Equal(t, []string{"6", "9", "12", "3"}, q.Options)
	assert.Equal(t, "9", q.CorrectAnswer)
	require.NotNil(t, q.QualityScore)
	assert.Equal(t, 0.9, *q.QualityScore)
	assert.Empty(t, q.Tags)
}
