package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/ledger/internal/metrics"
)

// Metrics records request duration and count per route pattern, and counts
// server errors.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		code := strconv.Itoa(status)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		metrics.RequestDuration.WithLabelValues(c.Request.Method, route, code).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, route, code).Inc()

		if status >= 500 {
			metrics.ErrorsTotal.WithLabelValues("http_" + code).Inc()
		}
	}
}
