package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/logging"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
)

const RequestIDHeader = "X-Request-ID"

// Logger logs each request and records it in the HTTP metrics
func Logger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), latency.Seconds())

		logger.WithRequestID(requestID).LogHTTPRequest(
			c.Request.Method, c.Request.URL.Path, route, c.ClientIP(), status, latency, c.Errors.String())
	}
}
