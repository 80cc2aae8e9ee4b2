package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/timmy/quizgen/internal/domain"
)

const (
	minQuestionChars      = 10
	maxQuestionChars      = 1000
	shortQuestionChars    = 20
	minExplanationChars   = 20
	shortExplanationChars = 50
	requiredOptions       = 4
	duplicateThreshold    = 0.8
	maxHardIssues         = 2
	minQualityScore       = 0.3
)

// RawQuestion is one candidate question as produced by the model. Field
// names vary between models, so decoding accepts the common spellings.
type RawQuestion struct {
	Question      string
	Options       []string
	CorrectAnswer string
	Explanation   string
	Difficulty    string
	Tags          []string
	// QualityScore is the generator's self assessment, nil when absent.
	QualityScore *float64
}

var errMissingField = errors.New("missing field")

var rawQuestionKeys = map[string][]string{
	"question":    {"question", "questionText", "question_text", "text"},
	"options":     {"options", "choices", "answers"},
	"answer":      {"correctAnswer", "correct_answer", "answer"},
	"explanation": {"explanation", "rationale"},
	"difficulty":  {"difficulty"},
	"tags":        {"tags", "keywords"},
	"score":       {"qualityScore", "quality_score", "score"},
}

// UnmarshalJSON decodes a candidate, tolerating alternative key names.
// Wrong-typed fields are left empty for validation to reject.
func (q *RawQuestion) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	lookup := func(name string) json.RawMessage {
		for _, key := range rawQuestionKeys[name] {
			if raw, ok := fields[key]; ok {
				return raw
			}
		}
		return nil
	}

	_ = decodeOptional(lookup("question"), &q.Question)
	_ = decodeOptional(lookup("options"), &q.Options)
	_ = decodeOptional(lookup("answer"), &q.CorrectAnswer)
	_ = decodeOptional(lookup("explanation"), &q.Explanation)
	_ = decodeOptional(lookup("difficulty"), &q.Difficulty)
	_ = decodeOptional(lookup("tags"), &q.Tags)

	var score float64
	if raw := lookup("score"); raw != nil && decodeOptional(raw, &score) == nil {
		q.QualityScore = &score
	}
	return nil
}

func decodeOptional(raw json.RawMessage, v interface{}) error {
	if raw == nil {
		return errMissingField
	}
	return json.Unmarshal(raw, v)
}

// ValidatedItem is a candidate that survived validation, with its audit
// findings.
type ValidatedItem struct {
	Question      string
	Options       []string
	CorrectAnswer string
	Explanation   string
	Difficulty    domain.Difficulty
	Tags          []string
	QualityScore  float64

	// ComputedScore is the heuristic score, recorded in the audit even when
	// the generator supplied its own.
	ComputedScore float64
	Issues        []string
	Suggestions   []string
	Similarity    float64
	Status        domain.ValidationStatus
}

// ValidateItem checks a candidate against structural rules and the
// chapter's existing question texts. It returns nil when the candidate
// must be dropped. fallback is used when the candidate has no valid
// difficulty.
func ValidateItem(raw RawQuestion, existing []string, fallback domain.Difficulty) *ValidatedItem {
	question := strings.TrimSpace(raw.Question)
	if utf8.RuneCountInString(question) < minQuestionChars {
		return nil
	}
	if len(raw.Options) != requiredOptions {
		return nil
	}

	options := make([]string, len(raw.Options))
	seen := make(map[string]struct{}, len(raw.Options))
	folded := make(map[string]struct{}, len(raw.Options))
	caseOnly := false
	for i, opt := range raw.Options {
		options[i] = strings.TrimSpace(opt)
		if _, dup := seen[options[i]]; dup {
			return nil
		}
		seen[options[i]] = struct{}{}

		key := strings.ToLower(options[i])
		if _, dup := folded[key]; dup {
			caseOnly = true
		}
		folded[key] = struct{}{}
	}

	answer := strings.TrimSpace(raw.CorrectAnswer)
	if !containsString(options, answer) {
		return nil
	}

	explanation := strings.TrimSpace(raw.Explanation)
	var issues, suggestions []string

	if caseOnly {
		suggestions = append(suggestions, "Some options differ only by letter case")
	}
	if !strings.HasSuffix(question, "?") {
		suggestions = append(suggestions, "Question text should end with a question mark")
	}
	if explanation == "" {
		suggestions = append(suggestions, "Add an explanation for the correct answer")
	} else if utf8.RuneCountInString(explanation) < minExplanationChars {
		suggestions = append(suggestions, "Explanation is too short to be useful")
	}

	similarity := maxSimilarity(question, existing)
	if similarity > duplicateThreshold {
		issues = append(issues, fmt.Sprintf("Possible duplicate of an existing question (similarity %.2f)", similarity))
	}
	for _, opt := range options {
		if opt == "" {
			issues = append(issues, "An option is blank")
			break
		}
	}
	if utf8.RuneCountInString(question) > maxQuestionChars {
		issues = append(issues, "Question text is too long")
	}

	if len(issues) > maxHardIssues {
		return nil
	}

	computed := qualityScore(question, explanation, len(issues), len(suggestions))
	score := computed
	if raw.QualityScore != nil && !math.IsNaN(*raw.QualityScore) {
		score = math.Min(1, math.Max(0, *raw.QualityScore))
	}

	difficulty := domain.Difficulty(strings.ToLower(strings.TrimSpace(raw.Difficulty)))
	if !difficulty.Valid() {
		difficulty = fallback
	}
	if !difficulty.Valid() {
		difficulty = domain.DifficultyMedium
	}

	return &ValidatedItem{
		Question:      question,
		Options:       options,
		CorrectAnswer: answer,
		Explanation:   explanation,
		Difficulty:    difficulty,
		Tags:          cleanTags(raw.Tags),
		QualityScore:  score,
		ComputedScore: computed,
		Issues:        issues,
		Suggestions:   suggestions,
		Similarity:    similarity,
		Status:        validationStatus(len(issues) + len(suggestions)),
	}
}

func qualityScore(question, explanation string, hard, soft int) float64 {
	score := 1.0 - 0.15*float64(hard) - 0.05*float64(soft)
	if utf8.RuneCountInString(question) < shortQuestionChars {
		score -= 0.1
	}
	if utf8.RuneCountInString(explanation) < shortExplanationChars {
		score -= 0.1
	}
	score = math.Max(minQualityScore, math.Min(1, score))
	return math.Round(score*100) / 100
}

func validationStatus(findings int) domain.ValidationStatus {
	switch {
	case findings == 0:
		return domain.ValidationPassed
	case findings <= 2:
		return domain.ValidationWarning
	default:
		return domain.ValidationFailed
	}
}

// maxSimilarity returns the highest similarity between question and any of
// existing: 1 for an exact normalized match, otherwise word-set Jaccard.
func maxSimilarity(question string, existing []string) float64 {
	normalized := normalizeText(question)
	best := 0.0
	for _, other := range existing {
		otherNorm := normalizeText(other)
		if otherNorm == normalized {
			return 1
		}
		if sim := JaccardSimilarity(normalized, otherNorm); sim > best {
			best = sim
		}
	}
	return best
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// JaccardSimilarity is |A∩B| / |A∪B| over the whitespace-separated word
// sets of a and b.
func JaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
