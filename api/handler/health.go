package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthmode/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when more than 80% of the session slots are in use.
func Health(sm SessionManager, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sm.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}
