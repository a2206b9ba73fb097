package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"akistel-relay/pkg/jwt"
)

// DeviceAuthMiddleware creates a Gin middleware that validates device session
// tokens. The token is issued on registration and presented either as a
// Bearer header or, for WebSocket upgrades where browsers cannot set headers,
// as a ?token= query parameter. On success the device_id and user_id claims
// are stored in the Gin context.
func DeviceAuthMiddleware(tokenManager *jwt.DeviceTokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}

		claims, err := tokenManager.Validate(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("device_id", claims.DeviceID)
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
