package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boosterlab/packdrop/internal/api/shared/errors"
)

// statusForCode maps an API error code to its HTTP status
func statusForCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeBadRequest, errors.ErrCodeValidationFailed, errors.ErrCodeReplayRejected:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeSoldOut:
		return http.StatusConflict
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError responds with the status matching the error's code. Errors
// that are not APIErrors become opaque internal errors.
func respondError(c *gin.Context, err error) {
	if apiErr, ok := err.(*errors.APIError); ok {
		c.JSON(statusForCode(apiErr.Code), apiErr)
		return
	}
	c.JSON(http.StatusInternalServerError, errors.NewInternalError("Internal server error"))
}

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, errors.NewBadRequestError(message, details...))
}

// respondValidationError responds with a validation error
func respondValidationError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errors.NewValidationError(message))
}

// respondReplayError responds with a replay rejection
func respondReplayError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errors.NewReplayRejectedError(message))
}
