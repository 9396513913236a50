package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const metricsRoute = "/metrics"

// HTTPObserver records and logs every admin request served for link.
// Successful metric scrapes are counted but not logged.
func HTTPObserver(link string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := routeOf(c)
		status := c.Writer.Status()
		RecordHTTPRequest(link, c.Request.Method, route, status, elapsed)
		if route == metricsRoute && status < 400 {
			return
		}

		levelFor(logger, status).
			Str("link", link).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("admin_request")
	}
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}

func levelFor(logger zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	default:
		return logger.Debug()
	}
}
