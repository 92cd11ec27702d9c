package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/artboard/server/internal/shared/errors"
	"github.com/artboard/server/internal/shared/response"
)

const (
	// IdempotencyKeyHeader is the header for idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// idempotencyKeyPrefix is the Redis key prefix.
	idempotencyKeyPrefix = "idempotency:"
	// defaultIdempotencyTTL is the default TTL for idempotency keys.
	defaultIdempotencyTTL = 24 * time.Hour
	// idempotencyLockTTL bounds how long an in-flight request holds its key.
	idempotencyLockTTL = 2 * time.Minute
)

// idempotencyResponse stores the cached response.
type idempotencyResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// idempotencyResponseWriter wraps gin.ResponseWriter to capture the response.
type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key,
// so a client retrying createGeneration after a dropped connection does not
// start (and pay for) a second job. Requests without the header pass through.
func Idempotency(redis goredis.UniversalClient, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if redis == nil || idempotencyKey == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := generateIdempotencyKey(c, idempotencyKey)

		if cached, err := getCachedResponse(ctx, redis, cacheKey); err == nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(cached.StatusCode, cached.ContentType, cached.Body)
			c.Abort()
			return
		}

		lockKey := cacheKey + ":lock"
		locked, err := redis.SetNX(ctx, lockKey, "1", idempotencyLockTTL).Result()
		if err != nil {
			c.Next()
			return
		}
		if !locked {
			response.Abort(c, apperrors.NewAppError(
				"REQUEST_IN_PROGRESS",
				"A request with this idempotency key is already being processed",
				http.StatusConflict,
				nil,
			))
			return
		}
		defer redis.Del(context.WithoutCancel(ctx), lockKey)

		respWriter := &idempotencyResponseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = respWriter

		c.Next()

		// Server errors are not cached so the client can retry them.
		if status := c.Writer.Status(); status >= 200 && status < 500 {
			resp := &idempotencyResponse{
				StatusCode:  status,
				ContentType: c.Writer.Header().Get("Content-Type"),
				Body:        respWriter.body.Bytes(),
			}
			_ = cacheResponse(context.WithoutCancel(ctx), redis, cacheKey, resp, ttl)
		}
	}
}

// generateIdempotencyKey scopes the client key to the caller and route.
func generateIdempotencyKey(c *gin.Context, idempotencyKey string) string {
	scope := c.Request.Method + ":" + c.FullPath() + ":" + GetUserID(c).String() + ":" + idempotencyKey
	hash := sha256.Sum256([]byte(scope))
	return idempotencyKeyPrefix + hex.EncodeToString(hash[:])
}

// getCachedResponse retrieves a cached response from Redis.
func getCachedResponse(ctx context.Context, redis goredis.UniversalClient, key string) (*idempotencyResponse, error) {
	data, err := redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var resp idempotencyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// cacheResponse stores a response in Redis.
func cacheResponse(ctx context.Context, redis goredis.UniversalClient, key string, resp *idempotencyResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return redis.Set(ctx, key, data, ttl).Err()
}
