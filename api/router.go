package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/linkshield/api/handler"
	"github.com/use-agent/linkshield/api/middleware"
	"github.com/use-agent/linkshield/cache"
	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/scanner"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint sits outside auth so monitoring can always reach it.
func NewRouter(sc *scanner.Scanner, pool handler.PoolReporter, batches *handler.Batches, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health needs no auth.
	v1.GET("/health", handler.Health(pool, startTime))

	// Protected group: auth, then rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scan", handler.Scan(sc, cc))
	protected.POST("/scan/batch", batches.Post())
	protected.GET("/scan/batch/:id", batches.Get())

	return r
}
