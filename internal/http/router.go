package http

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/metrics"
	"github.com/driftwise/reach-api/internal/usecase"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(service *usecase.Service, allowedOrigins []string, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), instrument())

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	router.Use(cors.New(corsConfig))

	// Create handler.
	handler := NewHandler(service, log)

	// API v1 routes.
	v1 := router.Group("/v1")
	reaches := v1.Group("/reaches")
	reaches.GET("/:feature_id/hydrology", handler.GetHydrology)
	reaches.GET("/:feature_id/species/:species_id", handler.GetSpeciesScore)
	reaches.GET("/:feature_id/hatches", handler.GetHatches)

	v1.GET("/metadata", handler.GetMetadata)

	// Health check and prometheus scrape.
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// instrument records request count and latency per matched route.
func instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
