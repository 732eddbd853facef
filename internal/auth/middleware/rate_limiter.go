package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

// RateLimiterConfig controls the sliding window limiter.
type RateLimiterConfig struct {
	MaxRequests   int
	WindowSeconds int
	// Strategy selects the limit key: user, endpoint, or ip (default).
	Strategy string
}

// RateLimitResult is the outcome of a single limiter check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   int64
}

// RateLimiter is a Redis-backed sliding window limiter middleware.
// Limiter failures fail open.
func RateLimiter(redisClient *redis.Client, cfg RateLimiterConfig, log *logger.Logger) gin.HandlerFunc {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "ip"
	}

	return func(c *gin.Context) {
		key := buildRateLimitKey(c, cfg.Strategy)

		ctx := c.Request.Context()
		res, err := CheckRateLimit(ctx, redisClient, key, cfg)
		if err != nil {
			log.Error("rate limiter error", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", res.ResetAt))

		if !res.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", cfg.WindowSeconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":  fmt.Sprintf("too many requests, please try again in %d seconds", cfg.WindowSeconds),
				"status": http.StatusTooManyRequests,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func buildRateLimitKey(c *gin.Context, strategy string) string {
	prefix := "rate_limit"

	switch strategy {
	case "user":
		if userID, exists := c.Get("user_id"); exists {
			return fmt.Sprintf("%s:user:%v", prefix, userID)
		}
		// unauthenticated callers fall back to IP
		return fmt.Sprintf("%s:ip:%s", prefix, c.ClientIP())

	case "endpoint":
		return fmt.Sprintf("%s:endpoint:%s:%s", prefix, c.Request.URL.Path, c.ClientIP())

	default:
		return fmt.Sprintf("%s:ip:%s", prefix, c.ClientIP())
	}
}

// CheckRateLimit runs one atomic sliding window check against Redis.
// Exported so handlers can meter non-HTTP resources, like model usage.
func CheckRateLimit(ctx context.Context, redisClient *redis.Client, key string, cfg RateLimiterConfig) (RateLimitResult, error) {
	now := time.Now().Unix()

	script := `
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])
		local window_start = now - window

		redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

		local current = redis.call('ZCARD', key)

		if current < limit then
			redis.call('ZADD', key, now, now)
			redis.call('EXPIRE', key, window)
			return {1, limit - current - 1, now + window}
		else
			local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
			local reset_time = tonumber(oldest) + window
			return {0, 0, reset_time}
		end
	`

	result, err := redisClient.Eval(ctx, script, []string{key}, now, cfg.WindowSeconds, cfg.MaxRequests)
	if err != nil {
		return RateLimitResult{}, err
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 3 {
		return RateLimitResult{}, fmt.Errorf("invalid rate limit result")
	}

	allowedInt, _ := resultSlice[0].(int64)
	remainingInt, _ := resultSlice[1].(int64)
	resetTimeInt, _ := resultSlice[2].(int64)

	return RateLimitResult{
		Allowed:   allowedInt == 1,
		Remaining: int(remainingInt),
		ResetAt:   resetTimeInt,
	}, nil
}

// LoginRateLimiter limits login attempts to 5 per 5 minutes per IP.
func LoginRateLimiter(redisClient *redis.Client, log *logger.Logger) gin.HandlerFunc {
	return RateLimiter(redisClient, RateLimiterConfig{
		MaxRequests:   5,
		WindowSeconds: 300,
		Strategy:      "ip",
	}, log)
}

// RegisterRateLimiter limits registration to 3 per hour per IP.
func RegisterRateLimiter(redisClient *redis.Client, log *logger.Logger) gin.HandlerFunc {
	return RateLimiter(redisClient, RateLimiterConfig{
		MaxRequests:   3,
		WindowSeconds: 3600,
		Strategy:      "ip",
	}, log)
}

// APIRateLimiter limits general API usage to 100 per minute per user.
func APIRateLimiter(redisClient *redis.Client, log *logger.Logger) gin.HandlerFunc {
	return RateLimiter(redisClient, RateLimiterConfig{
		MaxRequests:   100,
		WindowSeconds: 60,
		Strategy:      "user",
	}, log)
}

// ChatStreamLimit meters streaming chat requests, 30 per 3 hours per
// user. The stream handler checks it directly so the resulting quota
// snapshot can be forwarded on the data channel.
var ChatStreamLimit = RateLimiterConfig{
	MaxRequests:   30,
	WindowSeconds: 10800,
	Strategy:      "user",
}

// ChatRateLimiter is ChatStreamLimit as plain middleware.
func ChatRateLimiter(redisClient *redis.Client, log *logger.Logger) gin.HandlerFunc {
	return RateLimiter(redisClient, ChatStreamLimit, log)
}
