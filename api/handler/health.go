package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/linkshield/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// PoolReporter exposes browser page-pool metrics.
type PoolReporter interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of pages are active.
func Health(pool PoolReporter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.PoolStats
		if pool != nil {
			stats = pool.Stats()
		}

		status := "ok"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    int64(time.Since(startTime).Seconds()),
			PoolStats: stats,
			Version:   Version,
		})
	}
}
