package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/boosterlab/packdrop/internal/adapter"
	apierrors "github.com/boosterlab/packdrop/internal/api/shared/errors"
	"github.com/boosterlab/packdrop/internal/domain"
	"github.com/boosterlab/packdrop/internal/logger"
)

const (
	// UserIDKey is the gin context key holding the authenticated user ID
	UserIDKey = "auth_user_id"

	// Machine-readable failure reasons returned with 401 responses
	ReasonMissingAuthHeader = "missing_auth_header"
	ReasonInvalidAuthFormat = "invalid_auth_format"
	ReasonInvalidToken      = "invalid_token"
)

// TokenValidator resolves an opaque bearer token to a user ID. Unknown or
// expired tokens resolve to the empty string.
type TokenValidator interface {
	GetUserIDByToken(ctx context.Context, token string, now time.Time) (string, error)
}

// AuthResult holds the result of authentication
type AuthResult struct {
	Success bool
	UserID  string
	Reason  string
	Error   error
}

// Authenticate validates a bearer Authorization header against the token
// store. Tokens are opaque credentials of at least 32 characters; no
// structure beyond length is assumed.
func Authenticate(ctx context.Context, authHeader string, validator TokenValidator, now time.Time) AuthResult {
	if authHeader == "" {
		return AuthResult{Reason: ReasonMissingAuthHeader, Error: errors.New("missing Authorization header")}
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return AuthResult{Reason: ReasonInvalidAuthFormat, Error: errors.New("invalid Authorization header format")}
	}

	token := parts[1]
	if len(token) < domain.MinTokenLength {
		return AuthResult{Reason: ReasonInvalidAuthFormat, Error: errors.New("token too short")}
	}

	userID, err := validator.GetUserIDByToken(ctx, token, now)
	if err != nil {
		return AuthResult{Reason: ReasonInvalidToken, Error: err}
	}
	if userID == "" {
		return AuthResult{Reason: ReasonInvalidToken, Error: errors.New("unknown or expired token")}
	}

	return AuthResult{Success: true, UserID: userID}
}

// Auth returns a gin middleware authenticating opaque bearer tokens
func Auth(validator TokenValidator, clock adapter.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := Authenticate(c.Request.Context(), c.GetHeader("Authorization"), validator, clock.Now())

		if !result.Success {
			logger.Warn("Authentication failed",
				zap.Error(result.Error),
				zap.String("reason", result.Reason),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			apiErr := apierrors.NewUnauthorizedError("Authentication failed", result.Reason)
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiErr)
			return
		}

		c.Set(UserIDKey, result.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user ID set by the Auth middleware
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	userID, ok := v.(string)
	return userID, ok && userID != ""
}
