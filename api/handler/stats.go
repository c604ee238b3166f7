package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthmode/models"
	"github.com/use-agent/stealthmode/stats"
)

// GetStats returns a handler for GET /api/v1/stats.
func GetStats(rec *stats.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		totals, err := rec.Totals(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StatsResponse{
			Success: true,
			Skipped: totals.Skipped,
			SpedUp:  totals.SpedUp,
			Badge:   rec.Badge(),
		})
	}
}

// ResetStats returns a handler for POST /api/v1/stats/reset.
func ResetStats(rec *stats.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := rec.Reset(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StatsResponse{Success: true})
	}
}
