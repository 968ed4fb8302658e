package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config selects the shared middleware for a grader server.
type Config struct {
	Logger *zerolog.Logger
	// AccessLog adds fiber's plain access log on stdout, handy in development.
	AccessLog bool
	// AllowOrigins defaults to any origin; student pages call the agent from GitHub Pages.
	AllowOrigins []string
}

// Register installs the middleware shared by the evaluation API and the build agent.
// Correlation runs before the metrics handler so every log line carries the id.
func Register(app *fiber.App, cfg Config) {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "http").Logger()
	}

	origins := "*"
	if len(cfg.AllowOrigins) > 0 {
		origins = strings.Join(cfg.AllowOrigins, ",")
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Error().
				Str("correlation_id", GetCorrelationID(c)).
				Str("route", c.Path()).
				Str("panic", fmt.Sprint(e)).
				Msg("handler panicked")
		},
	}))
	app.Use(CorrelationID())
	app.Use(RequestMetrics(log))
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + HeaderCorrelationID,
		AllowMethods:  "GET,POST,OPTIONS",
		ExposeHeaders: HeaderCorrelationID + ", " + fiber.HeaderRetryAfter,
	}))
}
