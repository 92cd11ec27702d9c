package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newCountingLimiter() *countingLimiter {
	return &countingLimiter{counts: make(map[string]int)}
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[key] >= limit {
		return false, nil
	}
	l.counts[key]++
	return true, nil
}

func (l *countingLimiter) GetRemaining(_ context.Context, key string, limit int, _ time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return limit - l.counts[key], nil
}

func newRateLimitedRouter(limiter RateLimiter, userID uuid.UUID) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	})
	router.Use(RateLimitByUser(limiter, "generation", 2, time.Minute, nil))
	router.POST("/generate", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return router
}

func TestRateLimitByUser(t *testing.T) {
	t.Run("blocks after limit", func(t *testing.T) {
		limiter := newCountingLimiter()
		router := newRateLimitedRouter(limiter, uuid.New())

		var codes []int
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/generate", nil))
			codes = append(codes, w.Code)
			if i == 2 {
				assert.Equal(t, "60", w.Header().Get(RetryAfter))
				assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
			}
		}

		assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)
	})

	t.Run("keys by user", func(t *testing.T) {
		limiter := newCountingLimiter()
		userID := uuid.New()
		router := newRateLimitedRouter(limiter, userID)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/generate", nil))

		assert.Equal(t, 1, limiter.counts["generation:user:"+userID.String()])
		assert.Equal(t, "2", w.Header().Get(RateLimitLimit))
		assert.Equal(t, "1", w.Header().Get(RateLimitRemaining))
	})

	t.Run("fails open on limiter error", func(t *testing.T) {
		limiter := newCountingLimiter()
		limiter.err = errors.New("redis down")
		router := newRateLimitedRouter(limiter, uuid.New())

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/generate", nil))

		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("nil limiter passes through", func(t *testing.T) {
		router := newRateLimitedRouter(nil, uuid.New())

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/generate", nil))

		assert.Equal(t, http.StatusAccepted, w.Code)
	})
}
