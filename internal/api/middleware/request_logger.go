package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/warden/internal/cerberus"
)

// RequestLogger logs one line per request once the handler chain returns.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       SanitizePath(c.Request.URL.Path),
			"latency_ms": time.Since(start).Milliseconds(),
			"client":     cerberus.ExtractClient(c.Request).IPAddress,
		}
		if actor := c.GetString(cerberus.ActorIDKey); actor != "" {
			fields["actor"] = actor
		}
		entry := GetRequestLogger(c).WithFields(fields)
		if c.Writer.Status() >= 500 {
			entry.Warn("handled request")
			return
		}
		entry.Info("handled request")
	}
}
