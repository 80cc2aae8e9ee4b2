package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/metrics"
	"github.com/timmy/quizgen/internal/prompts"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/storage"
	"golang.org/x/sync/semaphore"
)

const (
	// EndpointQuestionGeneration attributes generation calls in the usage
	// ledger.
	EndpointQuestionGeneration = "question-generation"

	maxQuestionsPerJob    = 100
	generationTemperature = 0.8
	tokensPerQuestion     = 300
)

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("generation job not found")
	// ErrJobNotPending is returned when processing is requested for a job
	// that was already claimed.
	ErrJobNotPending = errors.New("generation job is not pending")
	// ErrStorageUnavailable is returned when uploaded source material is
	// referenced but no object storage is configured.
	ErrStorageUnavailable = errors.New("source storage is not configured")
	// ErrShuttingDown is returned by StartJob once Shutdown was called.
	ErrShuttingDown = errors.New("generation service is shutting down")

	errJobNotProcessing = errors.New("generation job is no longer processing")
)

// ValidationError rejects a job request before anything is stored.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// CatalogStore is the read side of the live question catalog.
type CatalogStore interface {
	FindChapter(ctx context.Context, id string) (*domain.ChapterInfo, error)
	ListQuestionTexts(ctx context.Context, chapterID string) ([]string, error)
	GetQuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error)
}

// StartJobRequest is a bulk generation request.
type StartJobRequest struct {
	AdminID       string
	AdminName     string
	SubjectID     string
	ChapterIDs    []string
	QuestionCount int
	Difficulty    domain.Difficulty
	SourceType    domain.SourceType
	SourceContent string
	SourceKey     string
}

// GenerationConfig tunes the job engine.
type GenerationConfig struct {
	// MaxConcurrentJobs bounds jobs processed at once. Default 2.
	MaxConcurrentJobs int
	// ChapterRetryAttempts is how often a chapter is attempted when the
	// model returns malformed JSON. Default 2.
	ChapterRetryAttempts int
	RetryDelay           time.Duration
	// SourceCharLimit caps source material embedded in prompts. Default 8000.
	SourceCharLimit int
	// OnProgress is called after each chapter with the job's new progress.
	OnProgress func(jobID string, progress int)
}

// GenerationService runs question generation jobs in the background.
type GenerationService struct {
	jobs      *repository.GenerationJobRepository
	items     *repository.GeneratedItemRepository
	catalog   CatalogStore
	completer Completer
	storage   storage.ObjectStorage
	metrics   *metrics.Metrics

	sem           *semaphore.Weighted
	wg            sync.WaitGroup
	baseCtx       context.Context
	cancel        context.CancelFunc
	retryAttempts int
	retryDelay    time.Duration
	sourceLimit   int
	onProgress    func(jobID string, progress int)
	now           func() time.Time
}

// NewGenerationService creates the job engine. objectStorage and m may be
// nil.
func NewGenerationService(
	jobs *repository.GenerationJobRepository,
	items *repository.GeneratedItemRepository,
	catalog CatalogStore,
	completer Completer,
	objectStorage storage.ObjectStorage,
	m *metrics.Metrics,
	cfg GenerationConfig,
) *GenerationService {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 2
	}
	if cfg.ChapterRetryAttempts <= 0 {
		cfg.ChapterRetryAttempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.SourceCharLimit <= 0 {
		cfg.SourceCharLimit = 8000
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GenerationService{
		jobs:          jobs,
		items:         items,
		catalog:       catalog,
		completer:     completer,
		storage:       objectStorage,
		metrics:       m,
		sem:           semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		baseCtx:       ctx,
		cancel:        cancel,
		retryAttempts: cfg.ChapterRetryAttempts,
		retryDelay:    cfg.RetryDelay,
		sourceLimit:   cfg.SourceCharLimit,
		onProgress:    cfg.OnProgress,
		now:           time.Now,
	}
}

func validateStartJob(req *StartJobRequest) error {
	chapters := req.ChapterIDs[:0:0]
	for _, id := range req.ChapterIDs {
		if id = strings.TrimSpace(id); id != "" {
			chapters = append(chapters, id)
		}
	}
	req.ChapterIDs = chapters

	if len(req.ChapterIDs) == 0 {
		return &ValidationError{Field: "chapterIds", Message: "At least one chapter is required"}
	}
	if req.QuestionCount < 1 || req.QuestionCount > maxQuestionsPerJob {
		return &ValidationError{Field: "questionCount", Message: "Question count must be between 1 and 100"}
	}
	if !req.SourceType.Valid() {
		return &ValidationError{Field: "sourceType", Message: "Invalid source type"}
	}
	if req.Difficulty != "" && !req.Difficulty.Valid() {
		return &ValidationError{Field: "difficulty", Message: "Difficulty must be easy, medium or hard"}
	}
	if req.SourceType == domain.SourceTypeUpload && req.SourceKey == "" && strings.TrimSpace(req.SourceContent) == "" {
		return &ValidationError{Field: "sourceKey", Message: "Uploaded source material is required"}
	}
	return nil
}

// StartJob validates req, stores a pending job and hands it to the worker
// pool. The returned job is the pending row; poll GetJob for progress.
func (s *GenerationService) StartJob(ctx context.Context, req StartJobRequest) (*domain.GenerationJob, error) {
	if err := validateStartJob(&req); err != nil {
		return nil, err
	}
	if s.baseCtx.Err() != nil {
		return nil, ErrShuttingDown
	}
	if req.SourceKey != "" && s.storage != nil {
		ok, err := s.storage.Exists(ctx, req.SourceKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check source material: %w", err)
		}
		if !ok {
			return nil, &ValidationError{Field: "sourceKey", Message: "Source material not found"}
		}
	}

	now := s.now().UTC()
	job := &domain.GenerationJob{
		ID:            uuid.New().String(),
		AdminID:       req.AdminID,
		AdminName:     req.AdminName,
		SubjectID:     req.SubjectID,
		ChapterIDs:    domain.StringArray(req.ChapterIDs),
		QuestionCount: req.QuestionCount,
		Difficulty:    req.Difficulty,
		SourceType:    req.SourceType,
		SourceContent: req.SourceContent,
		SourceKey:     req.SourceKey,
		Status:        domain.JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create generation job: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldJobID:  job.ID,
		logger.FieldUserID: job.AdminID,
		"chapters":         len(job.ChapterIDs),
		"question_count":   job.QuestionCount,
	}).Info(ctx, "Generation job created")

	s.dispatch(ctx, job.ID)
	return job, nil
}

// dispatch processes the job on a pool slot, detached from the request.
func (s *GenerationService) dispatch(reqCtx context.Context, jobID string) {
	ctx := logger.FromContext(reqCtx).WithContext(s.baseCtx)
	ctx = logger.SetJobID(ctx, jobID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.sem.Acquire(ctx, 1); err != nil {
			logger.FromContext(ctx).Warn("Generation stopped before the job got a slot; it stays pending")
			return
		}
		defer s.sem.Release(1)

		if err := s.ProcessJob(ctx, jobID); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Generation job did not complete")
		}
	}()
}

// Wait blocks until every dispatched job has finished.
func (s *GenerationService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels in-flight jobs, which then fail, and waits for them
// until ctx expires. Jobs still waiting for a slot stay pending and are
// picked up again by ResumePending. StartJob is rejected afterwards.
func (s *GenerationService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResumePending dispatches every job left pending by an earlier process
// and returns how many were queued.
func (s *GenerationService) ResumePending(ctx context.Context) (int, error) {
	ids, err := s.jobs.ListPendingIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending generation jobs: %w", err)
	}
	for _, id := range ids {
		s.dispatch(ctx, id)
	}
	if len(ids) > 0 {
		logger.With(logger.Fields{logger.FieldCount: len(ids)}).Info(ctx, "Resumed pending generation jobs")
	}
	return len(ids), nil
}

// ProcessJob runs a pending job to a terminal state. Any error, including
// a panic, is recorded on the job as failed and returned.
func (s *GenerationService) ProcessJob(ctx context.Context, jobID string) (err error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to load generation job: %w", err)
	}

	claimed, err := s.jobs.MarkProcessing(ctx, jobID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to start generation job: %w", err)
	}
	if !claimed {
		return ErrJobNotPending
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
		}
		if err != nil {
			s.markFailed(ctx, jobID, err)
		}
	}()

	total, err := s.runJob(ctx, job)
	if err != nil {
		return err
	}

	completed, err := s.jobs.MarkCompleted(ctx, jobID, total, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to complete generation job: %w", err)
	}
	if !completed {
		return errJobNotProcessing
	}
	s.notifyProgress(jobID, 100)
	s.metrics.JobFinished(jobID, string(domain.JobStatusCompleted))

	logger.With(logger.Fields{
		logger.FieldJobID:      jobID,
		logger.FieldCount:      total,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Generation job completed")
	return nil
}

// markFailed records err as the job's terminal state. It uses a detached
// context so a cancelled job can still be marked.
func (s *GenerationService) markFailed(ctx context.Context, jobID string, cause error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	failed, err := s.jobs.MarkFailed(writeCtx, jobID, cause.Error(), s.now().UTC())
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to mark generation job as failed")
		return
	}
	if !failed {
		logger.FromContext(ctx).WithError(cause).Warn("Generation job already left processing; failure not recorded")
		return
	}
	s.metrics.JobFinished(jobID, string(domain.JobStatusFailed))
	logger.FromContext(ctx).WithError(cause).Error("Generation job failed")
}

func (s *GenerationService) notifyProgress(jobID string, progress int) {
	s.metrics.JobProgress(jobID, progress)
	if s.onProgress != nil {
		s.onProgress(jobID, progress)
	}
}

// runJob generates every chapter in order and returns the number of
// stored items.
func (s *GenerationService) runJob(ctx context.Context, job *domain.GenerationJob) (int, error) {
	source, err := s.resolveSource(ctx, job)
	if err != nil {
		return 0, err
	}

	counts := DistributeCounts(job.QuestionCount, len(job.ChapterIDs))
	total := 0
	for i, chapterID := range job.ChapterIDs {
		if counts[i] == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		stored, err := s.generateChapter(ctx, job, chapterID, counts[i], source)
		if err != nil {
			return total, err
		}
		total += stored

		progress := int(math.Round(float64(total) / float64(job.QuestionCount) * 100))
		if err := s.jobs.UpdateProgress(ctx, job.ID, progress, total); err != nil {
			return total, fmt.Errorf("failed to update job progress: %w", err)
		}
		s.notifyProgress(job.ID, progress)
	}
	return total, nil
}

// DistributeCounts splits total over n chapters: ceil(total/n) each, the
// last chapter taking whatever remains, so the sum is exactly total.
func DistributeCounts(total, n int) []int {
	if n <= 0 {
		return nil
	}
	counts := make([]int, n)
	if total <= 0 {
		return counts
	}

	per := (total + n - 1) / n
	assigned := 0
	for i := 0; i < n-1; i++ {
		c := per
		if c > total-assigned {
			c = total - assigned
		}
		counts[i] = c
		assigned += c
	}
	counts[n-1] = total - assigned
	return counts
}

func (s *GenerationService) resolveSource(ctx context.Context, job *domain.GenerationJob) (string, error) {
	text := strings.TrimSpace(job.SourceContent)
	if text == "" && job.SourceKey != "" {
		if s.storage == nil {
			return "", ErrStorageUnavailable
		}
		loaded, err := storage.ReadText(ctx, s.storage, job.SourceKey, s.sourceLimit)
		if err != nil {
			return "", fmt.Errorf("failed to load source material: %w", err)
		}
		text = strings.TrimSpace(loaded)
	}
	if utf8.RuneCountInString(text) > s.sourceLimit {
		text = string([]rune(text)[:s.sourceLimit])
	}
	return text, nil
}

// generateChapter asks the model for count questions of one chapter and
// stores those that pass validation. It returns how many were stored.
func (s *GenerationService) generateChapter(ctx context.Context, job *domain.GenerationJob, chapterID string, count int, source string) (int, error) {
	ctx = logger.WithField(ctx, logger.FieldChapterID, chapterID)

	chapter, err := s.catalog.FindChapter(ctx, chapterID)
	if err != nil {
		return 0, fmt.Errorf("failed to load chapter %s: %w", chapterID, err)
	}
	if chapter == nil {
		return 0, fmt.Errorf("chapter %s not found", chapterID)
	}

	existing, err := s.catalog.ListQuestionTexts(ctx, chapterID)
	if err != nil {
		return 0, fmt.Errorf("failed to load existing questions: %w", err)
	}

	prompt := prompts.QuestionGenerationPrompt(prompts.QuestionGenerationParams{
		SubjectName: chapter.SubjectName,
		ChapterName: chapter.Name,
		Count:       count,
		Difficulty:  string(job.Difficulty),
		SourceText:  source,
	})
	opts := CompletionOptions{
		Temperature: generationTemperature,
		MaxTokens:   tokensPerQuestion * count,
		JSONMode:    true,
		UserID:      job.AdminID,
		Endpoint:    EndpointQuestionGeneration,
		Metadata: map[string]interface{}{
			"job_id":     job.ID,
			"chapter_id": chapterID,
			"count":      count,
		},
	}

	var candidates []RawQuestion
	err = retry.Do(
		func() error {
			text, err := s.completer.Complete(ctx, prompt, prompts.QuestionGenerationSystemPrompt, opts)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			parsed, err := ParseGeneratedQuestions(text)
			if err != nil {
				return err
			}
			candidates = parsed
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.retryAttempts)),
		retry.Delay(s.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.CtxWarn(ctx, "Chapter generation attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		return 0, err
	}

	stored, dropped := 0, 0
	for _, raw := range candidates {
		if stored == count {
			dropped++
			continue
		}
		item := ValidateItem(raw, existing, job.Difficulty)
		if item == nil {
			dropped++
			continue
		}
		if err := s.storeItem(ctx, job, chapterID, item); err != nil {
			return stored, err
		}
		existing = append(existing, item.Question)
		stored++
	}
	s.metrics.ItemsGenerated(stored, dropped)

	logger.With(logger.Fields{
		logger.FieldChapterID: chapterID,
		"requested":           count,
		"kept":                stored,
		"dropped":             dropped,
	}).Info(ctx, "Chapter generation finished")
	return stored, nil
}

func (s *GenerationService) storeItem(ctx context.Context, job *domain.GenerationJob, chapterID string, v *ValidatedItem) error {
	now := s.now().UTC()
	item := &domain.GeneratedItem{
		ID:            uuid.New().String(),
		JobID:         job.ID,
		ChapterID:     chapterID,
		QuestionText:  v.Question,
		Options:       domain.StringArray(v.Options),
		CorrectAnswer: v.CorrectAnswer,
		Explanation:   v.Explanation,
		Difficulty:    v.Difficulty,
		Tags:          domain.StringArray(v.Tags),
		QualityScore:  v.QualityScore,
		Status:        domain.ReviewStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	issues, err := json.Marshal(nonNil(v.Issues))
	if err != nil {
		return err
	}
	suggestions, err := json.Marshal(nonNil(v.Suggestions))
	if err != nil {
		return err
	}
	validation := &domain.QuestionValidation{
		ID:             uuid.New().String(),
		ValidationType: domain.ValidationTypeAICheck,
		Status:         v.Status,
		Score:          v.ComputedScore,
		Issues:         issues,
		Suggestions:    suggestions,
		CreatedAt:      now,
	}

	if err := s.items.CreateWithValidation(ctx, item, validation); err != nil {
		return fmt.Errorf("failed to store generated question: %w", err)
	}
	return nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

var questionListKeys = []string{"questions", "items", "data", "results"}

// ParseGeneratedQuestions decodes a model reply: a bare array, an object
// wrapping the array under a known key, or a single question object.
// Markdown code fences are tolerated.
func ParseGeneratedQuestions(text string) ([]RawQuestion, error) {
	text = stripCodeFence(text)

	switch {
	case strings.HasPrefix(text, "["):
		var list []RawQuestion
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return nil, fmt.Errorf("failed to parse AI response as JSON: %w", err)
		}
		return list, nil

	case strings.HasPrefix(text, "{"):
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
			return nil, fmt.Errorf("failed to parse AI response as JSON: %w", err)
		}
		for _, key := range questionListKeys {
			raw, ok := wrapper[key]
			if !ok {
				continue
			}
			var list []RawQuestion
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, fmt.Errorf("failed to parse %q in AI response: %w", key, err)
			}
			return list, nil
		}
		var single RawQuestion
		if err := json.Unmarshal([]byte(text), &single); err != nil {
			return nil, fmt.Errorf("failed to parse AI response as JSON: %w", err)
		}
		return []RawQuestion{single}, nil

	default:
		return nil, fmt.Errorf("failed to parse AI response as JSON: unexpected content %q", truncateText(text, 80))
	}
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncateText(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// GetJob returns a job by id.
func (s *GenerationService) GetJob(ctx context.Context, id string) (*domain.GenerationJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// ListJobs pages through jobs, newest first.
func (s *GenerationService) ListJobs(ctx context.Context, filter repository.JobFilter) ([]domain.GenerationJob, int64, error) {
	return s.jobs.List(ctx, filter)
}

// ListItems pages through generated questions.
func (s *GenerationService) ListItems(ctx context.Context, filter repository.ItemFilter) ([]domain.GeneratedItem, int64, error) {
	return s.items.List(ctx, filter)
}
