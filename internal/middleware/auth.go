package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the Bearer token for administrative requests
type AuthMiddleware struct {
	authToken string
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authToken string) *AuthMiddleware {
	return &AuthMiddleware{
		authToken: authToken,
	}
}

// Enabled reports whether a token is configured
func (m *AuthMiddleware) Enabled() bool {
	return m.authToken != ""
}

// RequireBearer aborts with 401 unless the request carries the configured token
func (m *AuthMiddleware) RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		// If no auth token is configured, skip authentication
		if m.authToken == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Unauthorized: Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "Unauthorized: Invalid Authorization header format")
			return
		}

		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(m.authToken)) != 1 {
			abortUnauthorized(c, "Unauthorized: Invalid token")
			return
		}

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detail})
}
