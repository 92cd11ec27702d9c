package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/artboard/server/internal/shared/errors"
	"github.com/artboard/server/internal/shared/logger"
	"github.com/artboard/server/internal/shared/response"
)

const (
	// RateLimitRemaining is the header for remaining requests.
	RateLimitRemaining = "X-RateLimit-Remaining"
	// RateLimitLimit is the header for the limit.
	RateLimitLimit = "X-RateLimit-Limit"
	// RateLimitReset is the header for reset time.
	RateLimitReset = "X-RateLimit-Reset"
	// RetryAfter is the header for retry time.
	RetryAfter = "Retry-After"
)

// RateLimiter is a sliding window limiter keyed by caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// RateLimitConfig holds rate limit configuration.
type RateLimitConfig struct {
	// Limit is the maximum number of requests.
	Limit int
	// Window is the time window.
	Window time.Duration
	// KeyFunc generates the rate limit key from request.
	// Default uses client IP.
	KeyFunc func(*gin.Context) string
}

// RateLimit returns a middleware that limits requests using the given limiter.
// Limiter errors fail open so a redis outage does not block generation.
func RateLimit(limiter RateLimiter, cfg RateLimitConfig, log *logger.Logger) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string {
			return "ip:" + c.ClientIP()
		}
	}
	if log == nil {
		log = logger.New(nil)
	}

	return func(c *gin.Context) {
		if limiter == nil || cfg.Limit <= 0 {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c)
		ctx := c.Request.Context()

		allowed, err := limiter.Allow(ctx, key, cfg.Limit, cfg.Window)
		if err != nil {
			log.WarnContext(ctx, "rate limiter unavailable", "key", key, logger.Err(err))
			c.Next()
			return
		}

		remaining, _ := limiter.GetRemaining(ctx, key, cfg.Limit, cfg.Window)

		c.Header(RateLimitLimit, strconv.Itoa(cfg.Limit))
		c.Header(RateLimitRemaining, strconv.Itoa(remaining))
		c.Header(RateLimitReset, strconv.FormatInt(time.Now().Add(cfg.Window).Unix(), 10))

		if !allowed {
			c.Header(RetryAfter, strconv.Itoa(int(cfg.Window.Seconds())))
			response.Abort(c, apperrors.RateLimited("Too many requests, please try again later"))
			return
		}

		c.Next()
	}
}

// RateLimitByUser returns a rate limiter keyed by the authenticated user.
// Falls back to IP if user is not authenticated.
func RateLimitByUser(limiter RateLimiter, scope string, limit int, window time.Duration, log *logger.Logger) gin.HandlerFunc {
	return RateLimit(limiter, RateLimitConfig{
		Limit:  limit,
		Window: window,
		KeyFunc: func(c *gin.Context) string {
			if userID := GetUserID(c); userID != uuid.Nil {
				return scope + ":user:" + userID.String()
			}
			return scope + ":ip:" + c.ClientIP()
		},
	}, log)
}
