package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/repository/repotest"
)

func newJob(t *testing.T, repo *repository.GenerationJobRepository) *domain.GenerationJob {
	t.Helper()
	job := &domain.GenerationJob{
		ID:            uuid.NewString(),
		AdminID:       "admin-1",
		ChapterIDs:    domain.StringArray{"algebra-1"},
		QuestionCount: 5,
		SourceType:    domain.SourceTypeAI,
		Status:        domain.JobStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestJobStatusTransitionsAreGuarded(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(repotest.NewDB(t))
	job := newJob(t, repo)
	now := time.Now().UTC()

	claimed, err := repo.MarkProcessing(ctx, job.ID, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.MarkProcessing(ctx, job.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed, "a processing job cannot be claimed twice")

	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 60, 3))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 40, 2))
	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress, "progress must not move backwards")
	assert.Equal(t, 3, got.TotalGenerated)

	done, err := repo.MarkCompleted(ctx, job.ID, 5, now)
	require.NoError(t, err)
	assert.True(t, done)

	failed, err := repo.MarkFailed(ctx, job.ID, "late failure", now)
	require.NoError(t, err)
	assert.False(t, failed, "a completed job cannot fail")

	done, err = repo.MarkCompleted(ctx, job.ID, 6, now)
	require.NoError(t, err)
	assert.False(t, done, "a completed job cannot complete twice")

	got, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Empty(t, got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestPendingJobCannotFail(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(repotest.NewDB(t))
	job := newJob(t, repo)

	failed, err := repo.MarkFailed(ctx, job.ID, "context canceled", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, failed)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.ErrorMessage)

	ids, err := repo.ListPendingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, ids)
}

func TestJobGetByIDNotFound(t *testing.T) {
	repo := repository.NewGenerationJobRepository(repotest.NewDB(t))
	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestJobListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(repotest.NewDB(t))
	for i := 0; i < 3; i++ {
		newJob(t, repo)
	}
	other := &domain.GenerationJob{
		ID: uuid.NewString(), AdminID: "admin-2", ChapterIDs: domain.StringArray{"c"},
		QuestionCount: 1, SourceType: domain.SourceTypeManual, Status: domain.JobStatusPending,
	}
	require.NoError(t, repo.Create(ctx, other))

	jobs, total, err := repo.List(ctx, repository.JobFilter{AdminID: "admin-1", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, jobs, 2)

	jobs, _, err = repo.List(ctx, repository.JobFilter{AdminID: "admin-1", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestApplyReviewApproveIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	jobs := repository.NewGenerationJobRepository(db)
	items := repository.NewGeneratedItemRepository(db)
	catalog := repository.NewCatalogRepository(db)

	job := newJob(t, jobs)
	item := &domain.GeneratedItem{
		ID:            uuid.NewString(),
		JobID:         job.ID,
		ChapterID:     "algebra-1",
		QuestionText:  "What is 2 + 2?",
		Options:       domain.StringArray{"3", "4", "5", "6"},
		CorrectAnswer: "4",
		Difficulty:    domain.DifficultyEasy,
		QualityScore:  0.9,
		Status:        domain.ReviewStatusPending,
	}
	validation := &domain.QuestionValidation{
		ID: uuid.NewString(), ValidationType: domain.ValidationTypeAICheck,
		Status: domain.ValidationPassed, Score: 0.9,
	}
	require.NoError(t, items.CreateWithValidation(ctx, item, validation))

	stored, err := items.GetValidation(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationPassed, stored.Status)

	question := &domain.Question{
		ID: uuid.NewString(), ChapterID: item.ChapterID, QuestionText: item.QuestionText,
		Options: item.Options, CorrectAnswer: item.CorrectAnswer, Difficulty: item.Difficulty,
	}
	update := repository.ReviewUpdate{
		Status: domain.ReviewStatusApproved, ReviewerID: "admin-1",
		ReviewedAt: time.Now().UTC(), Question: question,
	}
	require.NoError(t, items.ApplyReview(ctx, item, update))

	got, err := items.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewStatusApproved, got.Status)
	require.NotNil(t, got.FinalQuestionID)
	assert.Equal(t, question.ID, *got.FinalQuestionID)

	_, err = catalog.GetQuestion(ctx, question.ID)
	require.NoError(t, err)

	gotJob, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotJob.TotalApproved)

	second := update
	second.Question = &domain.Question{
		ID: uuid.NewString(), ChapterID: item.ChapterID, QuestionText: item.QuestionText,
		Options: item.Options, CorrectAnswer: item.CorrectAnswer,
	}
	err = items.ApplyReview(ctx, item, second)
	assert.ErrorIs(t, err, repository.ErrAlreadyReviewed)

	_, err = catalog.GetQuestion(ctx, second.Question.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound, "rolled back review must not leave a catalog question")
}

func TestUpsertAlertKeepsOneRowPerDay(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUsageRepository(repotest.NewDB(t))
	now := time.Now().UTC()

	first, err := repo.UpsertAlert(ctx, &domain.UsageAlert{
		ID: uuid.NewString(), Provider: "openai", AlertType: domain.AlertDailyCost,
		AlertDate: "2026-10-15", Threshold: 50, CurrentValue: 51, Triggered: true,
		Message: "first", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	second, err := repo.UpsertAlert(ctx, &domain.UsageAlert{
		ID: uuid.NewString(), Provider: "openai", AlertType: domain.AlertDailyCost,
		AlertDate: "2026-10-15", Threshold: 50, CurrentValue: 57, Triggered: true,
		Message: "second", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 57.0, second.CurrentValue)
	assert.Equal(t, "second", second.Message)

	alerts, err := repo.ListAlerts(ctx, "2026-10-01")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	won, err := repo.ClaimAlertNotification(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = repo.ClaimAlertNotification(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestUsageAggregates(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUsageRepository(repotest.NewDB(t))
	now := time.Now().UTC()

	records := []domain.UsageRecord{
		{Provider: "openai", Model: "gpt-4", Endpoint: "generation", TotalTokens: 100, EstimatedCost: 0.5, DurationMs: 100, Success: true},
		{Provider: "openai", Model: "gpt-4", Endpoint: "generation", TotalTokens: 50, EstimatedCost: 0.25, DurationMs: 300, Success: false},
		{Provider: "gemini", Model: "gemini-1.5-flash", Endpoint: "explain", TotalTokens: 10, EstimatedCost: 0.01, DurationMs: 200, Success: true},
	}
	for i := range records {
		records[i].ID = uuid.NewString()
		records[i].CreatedAt = now.Add(-time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, &records[i]))
	}

	stats, err := repo.Stats(ctx, repository.UsageFilter{Provider: "openai"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalCalls)
	assert.EqualValues(t, 1, stats.SuccessCalls)
	assert.EqualValues(t, 1, stats.FailedCalls)
	assert.InDelta(t, 0.75, stats.TotalCost, 1e-9)
	assert.InDelta(t, 200, stats.AvgDurationMs, 1e-9)

	sum, err := repo.SumCost(ctx, "openai", now.Add(-time.Hour), records[0].ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, sum, 1e-9)

	count, err := repo.CountCalls(ctx, "openai", now.Add(-time.Hour), "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	breakdown, err := repo.EndpointBreakdown(ctx, repository.UsageFilter{})
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, "generation", breakdown[0].Endpoint)
	assert.EqualValues(t, 2, breakdown[0].Calls)
	assert.Equal(t, "explain", breakdown[1].Endpoint)
}

func TestUsageDailyBreakdown(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUsageRepository(repotest.NewDB(t))

	records := []domain.UsageRecord{
		{Provider: "openai", UsageDate: "2026-10-13", EstimatedCost: 9, Success: true},
		{Provider: "openai", UsageDate: "2026-10-14", EstimatedCost: 0.5, Success: true},
		{Provider: "openai", UsageDate: "2026-10-14", EstimatedCost: 0.25, Success: false},
		{Provider: "gemini", UsageDate: "2026-10-14", EstimatedCost: 0.01, Success: true},
		{Provider: "openai", UsageDate: "2026-10-15", EstimatedCost: 1, Success: true},
	}
	for i := range records {
		records[i].ID = uuid.NewString()
		records[i].Model = "m"
		records[i].CreatedAt = time.Now().UTC()
		require.NoError(t, repo.Create(ctx, &records[i]))
	}

	days, err := repo.DailyBreakdown(ctx, "2026-10-14")
	require.NoError(t, err)
	require.Len(t, days, 3)

	assert.Equal(t, "2026-10-14", days[0].Date)
	assert.Equal(t, "gemini", days[0].Provider)
	assert.EqualValues(t, 1, days[0].Calls)

	assert.Equal(t, "2026-10-14", days[1].Date)
	assert.Equal(t, "openai", days[1].Provider)
	assert.EqualValues(t, 2, days[1].Calls)
	assert.EqualValues(t, 1, days[1].Failed)
	assert.InDelta(t, 0.75, days[1].TotalCost, 1e-9)

	assert.Equal(t, "2026-10-15", days[2].Date)
}

func TestFindChapter(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCatalogRepository(repotest.NewDB(t))

	require.NoError(t, repo.UpsertSubject(ctx, &domain.Subject{ID: "math", Name: "Mathematics"}))
	require.NoError(t, repo.UpsertChapter(ctx, &domain.Chapter{ID: "algebra-1", SubjectID: "math", Name: "Linear equations"}))

	info, err := repo.FindChapter(ctx, "algebra-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Linear equations", info.Name)
	assert.Equal(t, "Mathematics", info.SubjectName)

	missing, err := repo.FindChapter(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecentCompletedAttempts(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAttemptRepository(repotest.NewDB(t))
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 12; i++ {
		done := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, &domain.QuizAttempt{
			ID: uuid.NewString(), UserID: "u1", Score: i, Total: 12, CompletedAt: &done,
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.QuizAttempt{ID: uuid.NewString(), UserID: "u1", Total: 10}))

	attempts, err := repo.RecentCompleted(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, attempts, 10)
	assert.Equal(t, 11, attempts[0].Score)
}
