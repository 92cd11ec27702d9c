package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/artboard/server/internal/shared/logger"
)

// Logging returns a middleware that logs HTTP requests and makes a
// request-scoped logger available through logger.FromContext.
func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		reqLog := log
		if requestID := GetRequestID(c); requestID != "" {
			reqLog = log.With("request_id", requestID)
		}
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), reqLog))

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		if query != "" {
			attrs = append(attrs, "query", query)
		}
		if userAgent := c.Request.UserAgent(); userAgent != "" {
			attrs = append(attrs, "user_agent", userAgent)
		}
		if userID, exists := c.Get(UserIDKey); exists {
			attrs = append(attrs, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		msg := "HTTP Request"
		switch {
		case status >= 500:
			reqLog.Error(msg, attrs...)
		case status >= 400:
			reqLog.Warn(msg, attrs...)
		default:
			reqLog.Info(msg, attrs...)
		}
	}
}
