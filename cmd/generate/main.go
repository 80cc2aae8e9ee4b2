package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/timmy/quizgen/internal/app"
	"github.com/timmy/quizgen/internal/config"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "quizgen-generate",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	chapters := flag.String("chapters", "", "Comma separated chapter IDs to generate for")
	count := flag.Int("count", 10, "Number of questions to generate across all chapters")
	difficulty := flag.String("difficulty", "medium", "Question difficulty: easy, medium or hard")
	subject := flag.String("subject", "", "Subject ID recorded on the job")
	sourceFile := flag.String("source-file", "", "Optional text file used as source material")
	admin := flag.String("admin", "cli", "Admin ID recorded as the job creator")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	req := service.StartJobRequest{
		AdminID:       *admin,
		AdminName:     *admin,
		SubjectID:     *subject,
		ChapterIDs:    strings.Split(*chapters, ","),
		QuestionCount: *count,
		Difficulty:    domain.Difficulty(strings.ToLower(*difficulty)),
		SourceType:    domain.SourceTypeAI,
	}
	if *sourceFile != "" {
		data, err := os.ReadFile(*sourceFile)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to read source file")
		}
		req.SourceType = domain.SourceTypeUpload
		req.SourceContent = string(data)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}

	job, err := application.Generation.StartJob(ctx, req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "invalid job: %s: %s\n", verr.Field, verr.Message)
			os.Exit(2)
		}
		appLogger.WithError(err).Fatal("Failed to start generation job")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID: job.ID,
		"chapters":        len(job.ChapterIDs),
		logger.FieldCount: job.QuestionCount,
		"difficulty":      job.Difficulty,
	}).Info("Generation job started")

	done := make(chan struct{})
	go func() {
		application.Generation.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		appLogger.Warn("Interrupted, cancelling job...")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer closeCancel()
	defer func() {
		if err := application.Close(closeCtx); err != nil {
			appLogger.WithError(err).Error("Failed to release resources")
		}
	}()
	// Close waits for the job, so the final row is read after it.
	if err := application.Generation.Shutdown(closeCtx); err != nil {
		appLogger.WithError(err).Warn("Generation did not stop cleanly")
	}

	final, err := application.Generation.GetJob(closeCtx, job.ID)
	if err != nil {
		appLogger.WithError(err).Error("Failed to load job result")
		return
	}

	fmt.Printf("Job %s: %s\n", final.ID, final.Status)
	fmt.Printf("  progress:  %d%%\n", final.Progress)
	fmt.Printf("  generated: %d of %d requested\n", final.TotalGenerated, final.QuestionCount)
	if final.ErrorMessage != "" {
		fmt.Printf("  error:     %s\n", final.ErrorMessage)
	}
	fmt.Printf("  usage:     %s\n", usageSummary(closeCtx, application, final.CreatedAt))
}

func usageSummary(ctx context.Context, a *app.App, since time.Time) string {
	stats, err := a.Usage.GetStats(ctx, repository.UsageFilter{
		Endpoint: service.EndpointQuestionGeneration,
		Start:    &since,
	})
	if err != nil {
		return "unavailable"
	}
	return fmt.Sprintf("%d calls, %d tokens, $%.4f", stats.TotalCalls, stats.TotalTokens, stats.TotalCost)
}
