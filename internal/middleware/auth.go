package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sarthi/gateway/internal/config"
	"sarthi/gateway/internal/ids"
	"sarthi/gateway/internal/security"
)

const ContextIDKey = "context_id"

// BrowserContext resolves the bearer context token into the browser context
// id the session routes operate on.
func BrowserContext(cfg *config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		claims, err := security.ParseContextToken(strings.TrimPrefix(authHeader, "Bearer "), cfg.Security.ContextTokenSecret)
		if err != nil || !ids.Valid(claims.ContextID) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(ContextIDKey, claims.ContextID)
		c.Next()
	}
}
