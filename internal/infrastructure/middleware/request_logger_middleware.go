package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"soctel/pkg/logger"
)

// RequestLoggerMiddleware logs every request with its duration and status.
// Device and session ids set on the request context show up as structured
// fields.
func RequestLoggerMiddleware(base *zap.Logger) gin.HandlerFunc {
	ctxLogger := logger.NewContextLogger(base)

	return func(c *gin.Context) {
		start := time.Now()

		ctx := c.Request.Context()
		if id := c.Param("id"); id != "" {
			ctx = context.WithValue(ctx, "session_id", id)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		ctxLogger.LogRequest(ctx,
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start).Milliseconds(),
		)
	}
}
