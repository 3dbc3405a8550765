package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/luizcieslak/lofi-radio/internal/auth"
)

// securityHeaders adds standard HTTP security headers to every response.
// These mitigate clickjacking, MIME-sniffing, XSS reflection, and
// information leakage from the control surface's JSON/SSE responses.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// requireAdmin enforces JWT authentication via Authorization: Bearer <token>
// on the admin-only routes (reorder, reload, skip).
func requireAdmin(a *auth.Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(401, gin.H{"status": "error", "error": "authentication required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(401, gin.H{"status": "error", "error": "authentication required"})
			return
		}

		token := strings.TrimSpace(parts[1])
		if _, err := a.ValidateToken(token); err != nil {
			c.AbortWithStatusJSON(401, gin.H{"status": "error", "error": "invalid or expired token"})
			return
		}

		c.Next()
	}
}
