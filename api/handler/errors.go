package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthmode/models"
)

// respondError maps an APIError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		apiErr = models.NewAPIError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(apiErr), models.ErrorResponse{
		Success: false,
		Error:   apiErr.ToDetail(),
	})
}

func respondInvalid(c *gin.Context, err error) {
	respondError(c, models.NewAPIError(models.ErrCodeInvalidInput, err.Error(), err))
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.APIError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeSessionNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigation, models.ErrCodeFetch:
		return http.StatusBadGateway // 502
	case models.ErrCodeSessionLimit, models.ErrCodeBrowserCrash:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
