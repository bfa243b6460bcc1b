package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger emits a request event when a request arrives and a response event when it completes
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		method := strings.ToUpper(c.Request.Method)
		path := c.Request.URL.Path

		log.Debug("request",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if route := c.FullPath(); route != "" && route != path {
			fields = append(fields, zap.String("route", route))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("response", fields...)
		case status >= 400:
			log.Warn("response", fields...)
		default:
			log.Info("response", fields...)
		}
	}
}
