package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-appgrader/internal/config"
	"github.com/noah-isme/gema-appgrader/internal/handler"
	"github.com/noah-isme/gema-appgrader/internal/middleware"
	"github.com/noah-isme/gema-appgrader/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	NotifyHandler *handler.NotifyHandler
	QueryHandler  *handler.QueryHandler
	FormHandler   *handler.FormHandler
	BuildHandler  *handler.BuildHandler
	Health        handler.HealthOptions
}

// Register wires the evaluation API routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	registerCommon(app, cfg, deps)

	api := app.Group("/api")
	inbound := middleware.ClientRateLimit("inbound", cfg.NotifyRatePerMin, time.Minute)

	if deps.NotifyHandler != nil {
		deps.NotifyHandler.Register(api, inbound)
	}
	if deps.FormHandler != nil {
		deps.FormHandler.Register(api, inbound)
	}

	// Query endpoints are open unless a JWT secret is configured.
	if deps.QueryHandler != nil {
		deps.QueryHandler.Register(api,
			middleware.BearerAuth(cfg.JWTSecret),
			middleware.RequireRole(middleware.RoleInstructor, middleware.RoleGrader),
		)
	}
}

// RegisterAgent wires the student build agent routes.
func RegisterAgent(app *fiber.App, cfg config.Config, deps Dependencies) {
	registerCommon(app, cfg, deps)

	if deps.BuildHandler != nil {
		api := app.Group("/api")
		deps.BuildHandler.Register(api, middleware.ClientRateLimit("build", cfg.NotifyRatePerMin, time.Minute))
	}
}

func registerCommon(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	app.Get("/health", handler.HealthCheck(cfg, deps.Health))
	app.Get("/metrics", observability.MetricsHandler())
}
