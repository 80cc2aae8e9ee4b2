package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/metrics"
	"github.com/timmy/quizgen/internal/provider"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/repository/repotest"
	"github.com/timmy/quizgen/internal/storage/storagetest"
	"gorm.io/gorm"
)

// scriptedCompleter answers each call with the next scripted reply. When
// the script runs out it generates as many distinct valid questions as the
// token budget asks for.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []func() (string, error)
	prompts []string
	opts    []CompletionOptions
	next    int
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt, _ string, opts CompletionOptions) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.opts = append(c.opts, opts)
	var reply func() (string, error)
	if len(c.replies) > 0 {
		reply, c.replies = c.replies[0], c.replies[1:]
	}
	c.mu.Unlock()

	if reply != nil {
		return reply()
	}
	count := opts.MaxTokens / tokensPerQuestion
	return c.questions(count), nil
}

func (c *scriptedCompleter) questions(count int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]map[string]interface{}, 0, count)
	for i := 0; i < count; i++ {
		c.next++
		n := c.next
		list = append(list, map[string]interface{}{
			"question":      fmt.Sprintf("What is %d plus %d?", n, n*7),
			"options":       []string{fmt.Sprint(n * 8), fmt.Sprint(n*8 + 1), fmt.Sprint(n*8 + 2), fmt.Sprint(n*8 + 3)},
			"correctAnswer": fmt.Sprint(n * 8),
			"explanation":   "Adding the two numbers together gives the value of the first option.",
			"difficulty":    "easy",
			"tags":          []string{"addition"},
		})
	}
	data, _ := json.Marshal(map[string]interface{}{"questions": list})
	return string(data)
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func reply(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

type generationFixture struct {
	db      *gorm.DB
	jobs    *repository.GenerationJobRepository
	items   *repository.GeneratedItemRepository
	catalog *repository.CatalogRepository
}

func newGenerationFixture(t *testing.T, chapters ...string) *generationFixture {
	t.Helper()
	db := repotest.NewDB(t)
	f := &generationFixture{
		db:      db,
		jobs:    repository.NewGenerationJobRepository(db),
		items:   repository.NewGeneratedItemRepository(db),
		catalog: repository.NewCatalogRepository(db),
	}

	ctx := context.Background()
	require.NoError(t, f.catalog.UpsertSubject(ctx, &domain.Subject{ID: "math", Name: "Mathematics"}))
	for _, id := range chapters {
		require.NoError(t, f.catalog.UpsertChapter(ctx, &domain.Chapter{ID: id, SubjectID: "math", Name: "Chapter " + id}))
	}
	return f
}

func (f *generationFixture) service(completer Completer, cfg GenerationConfig) *GenerationService {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return NewGenerationService(f.jobs, f.items, f.catalog, completer, nil, nil, cfg)
}

// pendingJob stores a job without dispatching it, so tests can drive
// ProcessJob synchronously.
func (f *generationFixture) pendingJob(t *testing.T, chapters []string, count int) *domain.GenerationJob {
	t.Helper()
	job := &domain.GenerationJob{
		ID:            fmt.Sprintf("job-%d", time.Now().UnixNano()),
		AdminID:       "admin-1",
		ChapterIDs:    chapters,
		QuestionCount: count,
		SourceType:    domain.SourceTypeAI,
		Status:        domain.JobStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job
}

func TestDistributeCounts(t *testing.T) {
	testCases := []struct {
		name     string
		total    int
		chapters int
		want     []int
	}{
		{name: "remainder goes to last", total: 10, chapters: 3, want: []int{4, 4, 2}},
		{name: "single chapter", total: 5, chapters: 1, want: []int{5}},
		{name: "even split", total: 6, chapters: 2, want: []int{3, 3}},
		{name: "fewer items than chapters", total: 2, chapters: 3, want: []int{1, 1, 0}},
		{name: "one item", total: 1, chapters: 3, want: []int{1, 0, 0}},
		{name: "ceil exhausts early", total: 5, chapters: 4, want: []int{2, 2, 1, 0}},
		{name: "zero total", total: 0, chapters: 2, want: []int{0, 0}},
		{name: "no chapters", total: 5, chapters: 0, want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DistributeCounts(tc.total, tc.chapters)
			assert.Equal(t, tc.want, got)

			sum := 0
			for _, c := range got {
				assert.GreaterOrEqual(t, c, 0)
				sum += c
			}
			if tc.chapters > 0 && tc.total > 0 {
				assert.Equal(t, tc.total, sum)
			}
		})
	}
}

func TestStartJobValidation(t *testing.T) {
	f := newGenerationFixture(t)
	svc := f.service(&scriptedCompleter{}, GenerationConfig{})

	valid := StartJobRequest{AdminID: "admin-1", ChapterIDs: []string{"algebra-1"}, QuestionCount: 5, SourceType: domain.SourceTypeAI}

	testCases := []struct {
		name   string
		mutate func(r *StartJobRequest)
		field  string
	}{
		{name: "no chapters", mutate: func(r *StartJobRequest) { r.ChapterIDs = nil }, field: "chapterIds"},
		{name: "blank chapters", mutate: func(r *StartJobRequest) { r.ChapterIDs = []string{" ", ""} }, field: "chapterIds"},
		{name: "zero count", mutate: func(r *StartJobRequest) { r.QuestionCount = 0 }, field: "questionCount"},
		{name: "count above limit", mutate: func(r *StartJobRequest) { r.QuestionCount = 101 }, field: "questionCount"},
		{name: "unknown source type", mutate: func(r *StartJobRequest) { r.SourceType = "scraped" }, field: "sourceType"},
		{name: "unknown difficulty", mutate: func(r *StartJobRequest) { r.Difficulty = "expert" }, field: "difficulty"},
		{name: "upload without material", mutate: func(r *StartJobRequest) { r.SourceType = domain.SourceTypeUpload }, field: "sourceKey"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			req.ChapterIDs = append([]string(nil), valid.ChapterIDs...)
			tc.mutate(&req)

			job, err := svc.StartJob(context.Background(), req)
			assert.Nil(t, job)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	_, total, err := f.jobs.List(context.Background(), repository.JobFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

// TestGenerationEndToEnd runs a job through the real gateway with a single
// configured provider.
func TestGenerationEndToEnd(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	ctx := context.Background()

	questions := (&scriptedCompleter{}).questions(5)
	openai := &fakeProvider{name: "openai", priority: 1, configured: true, text: questions, usage: true}
	gemini := &fakeProvider{name: "gemini", priority: 2, configured: false}
	rec := &memoryRecorder{}
	gw := NewCompletionGateway([]provider.Provider{openai, gemini}, rec, nil)
	svc := f.service(gw, GenerationConfig{})

	job, err := svc.StartJob(ctx, StartJobRequest{
		AdminID:       "admin-1",
		ChapterIDs:    []string{"algebra-1"},
		QuestionCount: 5,
		SourceType:    domain.SourceTypeAI,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	svc.Wait()

	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.ErrorMessage)

	items, total, err := svc.ListItems(ctx, repository.ItemFilter{JobID: job.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Equal(t, int(total), got.TotalGenerated)
	for _, item := range items {
		assert.Equal(t, domain.ReviewStatusPending, item.Status)
		assert.Equal(t, "algebra-1", item.ChapterID)
		assert.Equal(t, domain.DifficultyEasy, item.Difficulty)

		v, err := f.items.GetValidation(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ValidationTypeAICheck, v.ValidationType)
		assert.Equal(t, domain.ValidationPassed, v.Status)
		assert.JSONEq(t, `[]`, string(v.Issues))
		assert.JSONEq(t, `[]`, string(v.Suggestions))
	}

	assert.Equal(t, 0, gemini.callCount())
	require.Len(t, openai.calls, 1)
	call := openai.calls[0]
	assert.True(t, call.JSONMode)
	assert.Equal(t, 0.8, call.Temperature)
	assert.Equal(t, 1500, call.MaxTokens)
	assert.Contains(t, call.Prompt, `"Chapter algebra-1"`)
	assert.Contains(t, call.Prompt, `"Mathematics"`)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, EndpointQuestionGeneration, records[0].Endpoint)
	assert.Equal(t, "admin-1", records[0].UserID)
	assert.Equal(t, job.ID, records[0].Metadata["job_id"])
}

func TestProcessJobProgressIsMonotonic(t *testing.T) {
	f := newGenerationFixture(t, "c1", "c2", "c3")
	ctx := context.Background()

	var mu sync.Mutex
	var observed []int
	completer := &scriptedCompleter{}
	svc := f.service(completer, GenerationConfig{OnProgress: func(_ string, p int) {
		mu.Lock()
		observed = append(observed, p)
		mu.Unlock()
	}})

	job := f.pendingJob(t, []string{"c1", "c2", "c3"}, 10)
	require.NoError(t, svc.ProcessJob(ctx, job.ID))

	assert.Equal(t, []int{40, 80, 100, 100}, observed)
	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, observed[i], observed[i-1])
	}

	require.Len(t, completer.opts, 3)
	assert.Equal(t, 1200, completer.opts[0].MaxTokens)
	assert.Equal(t, 1200, completer.opts[1].MaxTokens)
	assert.Equal(t, 600, completer.opts[2].MaxTokens)
	assert.Equal(t, "c2", completer.opts[1].Metadata["chapter_id"])

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 10, got.TotalGenerated)

	count, err := f.items.CountByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, count)
}

func TestFinishedJobsDropProgressSeries(t *testing.T) {
	f := newGenerationFixture(t, "c1", "c2")
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	var observed []int
	svc := NewGenerationService(f.jobs, f.items, f.catalog, &scriptedCompleter{}, nil, metrics.New(reg), GenerationConfig{
		RetryDelay: time.Millisecond,
		OnProgress: func(_ string, p int) { observed = append(observed, p) },
	})

	completed := f.pendingJob(t, []string{"c1", "c2"}, 4)
	require.NoError(t, svc.ProcessJob(ctx, completed.ID))
	assert.Equal(t, 100, observed[len(observed)-1])

	failed := f.pendingJob(t, []string{"missing"}, 1)
	require.Error(t, svc.ProcessJob(ctx, failed.ID))

	count, err := testutil.GatherAndCount(reg, "quizgen_generation_job_progress_percent")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = testutil.GatherAndCount(reg, "quizgen_generation_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestProcessJobKeepsOnlyValidItems(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	ctx := context.Background()

	// One item is already in the catalog, one has three options and one
	// names an answer that is not an option.
	require.NoError(t, f.catalog.CreateQuestion(ctx, &domain.Question{
		ID: "existing", ChapterID: "algebra-1", QuestionText: "What is 2 plus 14?",
		Options: domain.StringArray{"16", "17", "18", "19"}, CorrectAnswer: "16",
	}))
	payload := `[
		{"question": "What is 1 plus 7?", "options": ["8", "9", "10", "11"], "correctAnswer": "8", "explanation": "One plus seven is eight, the first option listed here."},
		{"question": "What is 2 plus 14?", "options": ["16", "17", "18", "19"], "correctAnswer": "16", "explanation": "Two plus fourteen is sixteen, the first option listed."},
		{"question": "What is 3 plus 21?", "options": ["24", "25", "26"], "correctAnswer": "24"},
		{"question": "What is 4 plus 28?", "options": ["32", "33", "34", "35"], "correctAnswer": "31"}
	]`
	svc := f.service(&scriptedCompleter{replies: []func() (string, error){reply(payload)}}, GenerationConfig{})

	job := f.pendingJob(t, []string{"algebra-1"}, 4)
	require.NoError(t, svc.ProcessJob(ctx, job.ID))

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 2, got.TotalGenerated)
	assert.Equal(t, 100, got.Progress)

	items, _, err := f.items.List(ctx, repository.ItemFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, items, 2)

	var duplicate *domain.GeneratedItem
	for i := range items {
		if items[i].QuestionText == "What is 2 plus 14?" {
			duplicate = &items[i]
		}
	}
	require.NotNil(t, duplicate)
	v, err := f.items.GetValidation(ctx, duplicate.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationWarning, v.Status)
	assert.Contains(t, string(v.Issues), "duplicate")
}

func TestProcessJobTruncatesToAssignedCount(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	completer := &scriptedCompleter{}
	extra := completer.questions(6)
	completer.replies = []func() (string, error){reply(extra)}
	svc := f.service(completer, GenerationConfig{})

	job := f.pendingJob(t, []string{"algebra-1"}, 3)
	require.NoError(t, svc.ProcessJob(context.Background(), job.ID))

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalGenerated)
}

func TestProcessJobRetriesMalformedOutput(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	completer := &scriptedCompleter{replies: []func() (string, error){reply("Sure! Here are your questions.")}}
	svc := f.service(completer, GenerationConfig{})

	job := f.pendingJob(t, []string{"algebra-1"}, 2)
	require.NoError(t, svc.ProcessJob(context.Background(), job.ID))
	assert.Equal(t, 2, completer.callCount())

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 2, got.TotalGenerated)
}

func TestProcessJobFailures(t *testing.T) {
	testCases := []struct {
		name      string
		chapters  []string
		replies   []func() (string, error)
		wantCalls int
		wantErr   string
	}{
		{
			name:      "malformed output on every attempt",
			chapters:  []string{"algebra-1"},
			replies:   []func() (string, error){reply("nope"), reply("still nope")},
			wantCalls: 2,
			wantErr:   "failed to parse AI response",
		},
		{
			name:     "providers exhausted",
			chapters: []string{"algebra-1"},
			replies: []func() (string, error){func() (string, error) {
				return "", errors.New("all AI providers failed: gemini: quota exceeded")
			}},
			wantCalls: 1,
			wantErr:   "all AI providers failed: gemini: quota exceeded",
		},
		{
			name:      "unknown chapter",
			chapters:  []string{"algebra-1", "missing"},
			wantCalls: 1,
			wantErr:   "chapter missing not found",
		},
		{
			name:     "panic in the completer",
			chapters: []string{"algebra-1"},
			replies: []func() (string, error){func() (string, error) {
				panic("boom")
			}},
			wantCalls: 1,
			wantErr:   "generation panicked: boom",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGenerationFixture(t, "algebra-1")
			completer := &scriptedCompleter{replies: tc.replies}
			svc := f.service(completer, GenerationConfig{})

			job := f.pendingJob(t, tc.chapters, 4)
			err := svc.ProcessJob(context.Background(), job.ID)
			require.Error(t, err)
			assert.Equal(t, tc.wantCalls, completer.callCount())

			got, getErr := f.jobs.GetByID(context.Background(), job.ID)
			require.NoError(t, getErr)
			assert.Equal(t, domain.JobStatusFailed, got.Status)
			assert.Contains(t, got.ErrorMessage, tc.wantErr)
			assert.Equal(t, err.Error(), got.ErrorMessage)
			assert.NotNil(t, got.CompletedAt)
		})
	}
}

func TestProcessJobOnlyClaimsPendingJobs(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	svc := f.service(&scriptedCompleter{}, GenerationConfig{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.ProcessJob(ctx, "no-such-job"), ErrJobNotFound)

	job := f.pendingJob(t, []string{"algebra-1"}, 1)
	require.NoError(t, svc.ProcessJob(ctx, job.ID))
	assert.ErrorIs(t, svc.ProcessJob(ctx, job.ID), ErrJobNotPending)

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
}

func TestProcessJobReadsUploadedSource(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	ctx := context.Background()

	store := storagetest.NewMemory()
	store.Put("sources/notes.txt", "Linear equations have exactly one solution when the slope is non-zero.")

	completer := &scriptedCompleter{}
	svc := NewGenerationService(f.jobs, f.items, f.catalog, completer, store, nil, GenerationConfig{RetryDelay: time.Millisecond})

	job := f.pendingJob(t, []string{"algebra-1"}, 1)
	require.NoError(t, f.db.Model(&domain.GenerationJob{}).Where("id = ?", job.ID).
		Updates(map[string]interface{}{"source_type": domain.SourceTypeUpload, "source_key": "sources/notes.txt"}).Error)

	require.NoError(t, svc.ProcessJob(ctx, job.ID))
	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "exactly one solution when the slope is non-zero")
	assert.Contains(t, completer.prompts[0], "<source>")
}

func TestStartJobChecksSourceKey(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	ctx := context.Background()

	store := storagetest.NewMemory()
	store.Put("sources/notes.txt", "Slope-intercept form is y = mx + b.")
	svc := NewGenerationService(f.jobs, f.items, f.catalog, &scriptedCompleter{}, store, nil, GenerationConfig{RetryDelay: time.Millisecond})
	t.Cleanup(svc.Wait)

	req := StartJobRequest{
		AdminID:       "admin-1",
		ChapterIDs:    []string{"algebra-1"},
		QuestionCount: 1,
		SourceType:    domain.SourceTypeUpload,
		SourceKey:     "sources/missing.txt",
	}
	_, err := svc.StartJob(ctx, req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, "sourceKey", verr.Field)

	req.SourceKey = "sources/notes.txt"
	job, err := svc.StartJob(ctx, req)
	require.NoError(t, err)
	svc.Wait()

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
}

func TestProcessJobUploadWithoutStorage(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	ctx := context.Background()
	svc := f.service(&scriptedCompleter{}, GenerationConfig{})

	job := f.pendingJob(t, []string{"algebra-1"}, 1)
	require.NoError(t, f.db.Model(&domain.GenerationJob{}).Where("id = ?", job.ID).
		Update("source_key", "sources/notes.txt").Error)

	err := svc.ProcessJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	got, getErr := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, ErrStorageUnavailable.Error(), got.ErrorMessage)
}

func TestShutdownFailsRunningAndKeepsQueuedJobsPending(t *testing.T) {
	f := newGenerationFixture(t, "algebra-1")
	ctx := context.Background()

	release := make(chan struct{})
	completer := &scriptedCompleter{replies: []func() (string, error){func() (string, error) {
		<-release
		return "", errors.New("interrupted")
	}}}
	svc := f.service(completer, GenerationConfig{MaxConcurrentJobs: 1})

	req := StartJobRequest{AdminID: "admin-1", ChapterIDs: []string{"algebra-1"}, QuestionCount: 1, SourceType: domain.SourceTypeAI}
	running, err := svc.StartJob(ctx, req)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return completer.callCount() == 1 }, time.Second, 5*time.Millisecond)

	queued, err := svc.StartJob(ctx, req)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Shutdown(ctx) }()

	require.Eventually(t, func() bool {
		_, err := svc.StartJob(ctx, req)
		return errors.Is(err, ErrShuttingDown)
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-done)

	got, err := f.jobs.GetByID(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.NotNil(t, got.StartedAt)

	got, err = f.jobs.GetByID(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, got.ErrorMessage)

	// a fresh service picks the queued job up again
	next := f.service(&scriptedCompleter{}, GenerationConfig{})
	resumed, err := next.ResumePending(ctx)
	require.NoError(t, err)
	next.Wait()

	assert.GreaterOrEqual(t, resumed, 1)
	got, err = f.jobs.GetByID(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
}

func TestParseGeneratedQuestions(t *testing.T) {
	item := `{"question": "What is 1 plus 7?", "options": ["8","9","10","11"], "correctAnswer": "8"}`

	testCases := []struct {
		name    string
		text    string
		want    int
		wantErr bool
	}{
		{name: "bare array", text: "[" + item + "," + item + "]", want: 2},
		{name: "questions wrapper", text: `{"questions": [` + item + `]}`, want: 1},
		{name: "items wrapper", text: `{"items": [` + item + `, ` + item + `]}`, want: 2},
		{name: "data wrapper", text: `{"data": []}`, want: 0},
		{name: "single object", text: item, want: 1},
		{name: "fenced", text: "```json\n" + `{"questions": [` + item + `]}` + "\n```", want: 1},
		{name: "prose", text: "Here are your questions", wantErr: true},
		{name: "truncated", text: `{"questions": [` + item, wantErr: true},
		{name: "wrapper of wrong type", text: `{"questions": "none"}`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseGeneratedQuestions(tc.text)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, strings.HasPrefix(err.Error(), "failed to parse"), err.Error())
				return
			}
			require.NoError(t, err)
			require.Len(t, got, tc.want)
			if tc.want > 0 {
				assert.Equal(t, "What is 1 plus 7?", got[0].Question)
				assert.Equal(t, "8", got[0].CorrectAnswer)
			}
		})
	}
}
