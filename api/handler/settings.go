package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthmode/models"
	"github.com/use-agent/stealthmode/settings"
)

// GetSettings returns a handler for GET /api/v1/settings.
func GetSettings(st settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.SettingsResponse{
			Success: true,
			Enabled: settings.Enabled(c.Request.Context(), st),
		})
	}
}

// PutSettings returns a handler for PUT /api/v1/settings. Running sessions
// pick the change up through the store's change notification.
func PutSettings(st settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
		if err := st.Set(c.Request.Context(), settings.KeyEnabled, *req.Enabled); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SettingsResponse{Success: true, Enabled: *req.Enabled})
	}
}
