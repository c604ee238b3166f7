package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthmode/models"
)

// SessionManager opens and tracks watched browser tabs. *browser.Manager
// implements it.
type SessionManager interface {
	Open(ctx context.Context, req *models.OpenSessionRequest) (models.SessionInfo, error)
	Get(id string) (models.SessionInfo, error)
	List() []models.SessionInfo
	CloseSession(ctx context.Context, id string) (models.SessionInfo, error)
	Stats() models.PoolStats
}

// OpenSession returns a handler for POST /api/v1/sessions.
func OpenSession(sm SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.OpenSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
		req.Defaults()

		info, err := sm.Open(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SessionResponse{Success: true, Session: info})
	}
}

// ListSessions returns a handler for GET /api/v1/sessions.
func ListSessions(sm SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		all := sm.List()
		c.JSON(http.StatusOK, models.SessionListResponse{
			Success:  true,
			Sessions: all,
			Total:    len(all),
		})
	}
}

// GetSession returns a handler for GET /api/v1/sessions/:id.
func GetSession(sm SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := sm.Get(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SessionResponse{Success: true, Session: info})
	}
}

// CloseSession returns a handler for DELETE /api/v1/sessions/:id. The
// response carries the session's final counters.
func CloseSession(sm SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := sm.CloseSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SessionResponse{Success: true, Session: info})
	}
}
