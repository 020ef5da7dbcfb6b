package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bolsa-labs/bolsa-api/internal/quota"
	"github.com/bolsa-labs/bolsa-api/pkg/response"
)

// RateLimit enforces a fixed-window quota per (subject, endpoint).
// The subject is the authenticated client when available, the client IP
// otherwise, so the middleware also works in front of JWTAuth.
func RateLimit(guard *quota.Guard, limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString("clientID")
		if subject == "" {
			subject = c.ClientIP()
		}

		result := guard.Check(c.Request.Context(), subject, c.FullPath(), limit, window)
		if !result.Allowed {
			response.RateLimited(c, result.Limit, result.Remaining, result.RetryAfter)
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth resolves the bearer token to a subject and stores it in the
// context as clientID. Requests without a resolvable subject never reach
// the handlers.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearerToken := strings.Split(c.GetHeader("Authorization"), " ")
		if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "bearer") {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}

		token, err := jwt.Parse(bearerToken[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			response.Unauthorized(c, "Invalid token claims")
			c.Abort()
			return
		}

		for _, claim := range []string{"client_id", "exp"} {
			if _, exists := claims[claim]; !exists {
				response.Unauthorized(c, fmt.Sprintf("Missing required claim: %s", claim))
				c.Abort()
				return
			}
		}

		clientID, ok := claims["client_id"].(string)
		if !ok || clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("clientID", clientID)

		c.Next()
	}
}
