package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/auth"
)

// AuthMiddleware verifies the bearer token and stores the identity in the
// gin context. Authentication happens exactly once per connection, before
// the websocket upgrade; a missing or invalid token is a terminal reject.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearer(c.Request.Header.Get("Authorization"))
		if tokenString == "" {
			// Browsers cannot set headers on a websocket handshake, so allow
			// ?token= as a fallback.
			tokenString = strings.TrimSpace(c.Query("token"))
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(401, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "Authorization header is missing or invalid",
			})
			return
		}

		id, err := auth.VerifyAccessToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "invalid token",
			})
			return
		}

		c.Set("userId", id.UserID)
		c.Set("displayName", id.DisplayName)
		c.Set("role", id.Role)
		c.Next()
	}
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
