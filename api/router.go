package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/dy-extract-go/api/handlers"
	"github.com/yourusername/dy-extract-go/api/middleware"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// RouterOptions carries what the router needs besides the engine
type RouterOptions struct {
	Config      *domain.Config
	Strategies  []string
	MultiLogger *logger.MultiLogger
	Logger      *zap.Logger
}

// SetupRouter sets up the HTTP router
func SetupRouter(engine handlers.Acquirer, opts RouterOptions) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(opts.Logger, opts.MultiLogger))
	router.Use(middleware.Recovery(opts.Logger, opts.MultiLogger))

	healthHandler := handlers.NewHealthHandler(opts.Strategies, opts.Config.Download.OutputDir, opts.Config.Browser.Enabled)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		acquireHandler := handlers.NewAcquireHandler(engine, opts.Config.Download.ConcurrentLimit, opts.Logger)
		v1.POST("/acquisitions", acquireHandler.Acquire)
		v1.GET("/video-id", acquireHandler.VideoID)

		logHandler := handlers.NewLogHandler(opts.Config.Download.LogsDir)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
