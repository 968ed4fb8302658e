package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-appgrader/internal/config"
)

const healthPingTimeout = 2 * time.Second

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Database    string            `json:"database,omitempty"`
	Components  map[string]string `json:"components,omitempty"`
}

// HealthOptions lists what the health endpoint reports on. Database may be nil when
// the process has no store.
type HealthOptions struct {
	Database   func(ctx context.Context) error
	Components map[string]bool
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, opts HealthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "healthy",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		status := fiber.StatusOK
		if opts.Database != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
			defer cancel()
			if err := opts.Database(ctx); err != nil {
				payload.Status = "degraded"
				payload.Database = "unavailable"
				status = fiber.StatusServiceUnavailable
			} else {
				payload.Database = "connected"
			}
		}

		if len(opts.Components) > 0 {
			payload.Components = make(map[string]string, len(opts.Components))
			for name, configured := range opts.Components {
				if configured {
					payload.Components[name] = "configured"
				} else {
					payload.Components[name] = "not configured"
				}
			}
		}

		return c.Status(status).JSON(payload)
	}
}
