package router

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware logs HTTP requests with slog. Job-scoped endpoints
// carry the job id in the "uuid" query parameter; it gets its own
// attribute so requests correlate with worker log lines.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("body_size", c.Writer.Size()),
		}
		if jobID := c.Query("uuid"); jobID != "" {
			attrs = append(attrs, slog.String("job_id", jobID))
		}

		logger.Info("HTTP request", attrs...)
	}
}
