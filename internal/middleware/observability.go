package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/observability"
)

// unmeteredPaths are scraped or polled by infrastructure and would drown the request
// metrics.
var unmeteredPaths = map[string]bool{
	"/metrics": true,
	"/health":  true,
}

// RequestMetrics records every API call in Prometheus and writes one structured log line
// per request, at warn for 4xx and error for 5xx.
func RequestMetrics(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		if unmeteredPaths[c.Path()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}
		status := c.Response().StatusCode()
		observability.RecordRequest(c.Method(), route, status, elapsed)

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}
		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("request served")

		return err
	}
}
