package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/quizgen/internal/app"
	"github.com/timmy/quizgen/internal/config"
	"github.com/timmy/quizgen/internal/logger"
)

func main() {
	// Initialize logger first (from LOG_* environment variables)
	appLogger := logger.New(logger.LoadFromEnv().ToConfig())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}

	// Jobs queued when the previous process stopped are still pending.
	if _, err := application.Generation.ResumePending(ctx); err != nil {
		appLogger.WithError(err).Error("Failed to resume pending generation jobs")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":     cfg.Server.Port,
			"mode":     cfg.Server.Mode,
			"storage":  application.Storage != nil,
			"index":    application.Index != nil,
			"database": cfg.Database.Driver,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	// Running generation jobs are cancelled and fail; queued ones stay pending.
	if err := application.Close(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Failed to release resources")
	}

	appLogger.Info("Server exited")
}
