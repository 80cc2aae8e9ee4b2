package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/quizgen/internal/api/handler"
	"github.com/timmy/quizgen/internal/api/middleware"
	"github.com/timmy/quizgen/internal/config"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/service"
	"github.com/timmy/quizgen/internal/storage"
)

// Dependencies are the services the HTTP layer serves. Storage, Index,
// DB and Gatherer are optional.
type Dependencies struct {
	Generation *service.GenerationService
	Review     *service.ReviewService
	Usage      *service.UsageService
	Adaptive   *service.AdaptiveService
	Index      service.QuestionIndexer
	Storage    storage.ObjectStorage
	Sources    *repository.SourceDocumentRepository
	DB         handler.Pinger
	Gatherer   prometheus.Gatherer
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Dependencies, cfg *config.Config) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB)
	generationHandler := handler.NewGenerationHandler(deps.Generation, deps.Review)
	usageHandler := handler.NewUsageHandler(deps.Usage)
	sourceHandler := handler.NewSourceHandler(deps.Storage, deps.Sources, int64(cfg.Generation.MaxUploadBytes))
	questionHandler := handler.NewQuestionHandler(deps.Index, deps.Adaptive)

	r.GET("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		admin := v1.Group("/admin", requireAdmin())
		{
			gen := admin.Group("/generation")
			gen.POST("/jobs", generationHandler.StartJob)
			gen.GET("/jobs", generationHandler.ListJobs)
			gen.GET("/jobs/:id", generationHandler.GetJob)
			gen.GET("/questions", generationHandler.ListItems)
			gen.POST("/review", generationHandler.Review)
			gen.POST("/sources", sourceHandler.Upload)

			usage := admin.Group("/ai-usage")
			usage.GET("/stats", usageHandler.Stats)
			usage.GET("/daily", usageHandler.Daily)
			usage.GET("/endpoints", usageHandler.Endpoints)
			usage.GET("/budget", usageHandler.Budget)
			usage.GET("/alerts", usageHandler.Alerts)
		}

		v1.GET("/users/:id/recommended-difficulty", questionHandler.RecommendedDifficulty)
		v1.GET("/questions/similar", questionHandler.Similar)
	}

	return r
}

// requireAdmin rejects admin requests without an X-Admin-ID header.
// Authentication happens upstream; the header only carries identity.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-ID") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-Admin-ID header is required"})
			return
		}
		c.Next()
	}
}
