package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter assembles the gin engine: common middleware, a bare health
// check, and the merge submission/status/events routes under /api/v1.
func NewRouter(logger *zap.Logger, merges *MergeHandler, progress *ProgressHandler, health *HealthHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))
	router.Use(ErrorHandler())
	router.Use(RequestID())

	router.GET("/healthz", health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/merges", merges.Submit)
		api.GET("/merges/:id", merges.Status)
		api.GET("/merges/:id/events", progress.Stream)
	}

	return router
}
