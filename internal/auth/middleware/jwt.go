package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/pentestgpt-backend/internal/auth"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// JWTAuth authenticates requests via Bearer token, falling back to the
// "token" query parameter so EventSource clients can pass credentials.
func JWTAuth(jwtManager *auth.JWTManager, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		var err error

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			token, err = auth.ExtractTokenFromHeader(authHeader)
			if err != nil {
				response.Unauthorized(c, "invalid authorization header format")
				c.Abort()
				return
			}
		} else {
			token = c.Query("token")
			if token == "" {
				response.Unauthorized(c, "missing authorization")
				c.Abort()
				return
			}
		}

		claims, err := jwtManager.VerifyAccessToken(token)
		if err != nil {
			log.Warn("invalid access token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()))
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)

		c.Next()
	}
}

// OptionalJWTAuth attaches identity when a valid token is present but
// never rejects the request.
func OptionalJWTAuth(jwtManager *auth.JWTManager, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		token, err := auth.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.Next()
			return
		}

		claims, err := jwtManager.VerifyAccessToken(token)
		if err != nil {
			c.Next()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

// GetUserID returns the authenticated user id set by JWTAuth.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok
}

// GetEmail returns the authenticated email set by JWTAuth.
func GetEmail(c *gin.Context) (string, bool) {
	email, exists := c.Get("email")
	if !exists {
		return "", false
	}
	e, ok := email.(string)
	return e, ok
}

// CORS handles cross-origin requests, reflecting the caller's origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		origin := c.Request.Header.Get("Origin")

		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			c.Header("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
			c.Header("Access-Control-Expose-Headers", "Content-Length, Cache-Control, Content-Language, Content-Type")
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
