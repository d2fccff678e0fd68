package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/boosterlab/packdrop/internal/api/shared/errors"
)

// AdminSecretHeader carries the shared secret for admin endpoints
const AdminSecretHeader = "X-Admin-Secret"

// AdminSecret returns a gin middleware guarding admin endpoints with a
// shared secret. An empty configured secret disables the surface entirely.
func AdminSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(AdminSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, apierrors.NewForbiddenError("Admin secret mismatch"))
			return
		}
		c.Next()
	}
}
