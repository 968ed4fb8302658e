package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/config"
	"github.com/noah-isme/gema-appgrader/internal/database"
	"github.com/noah-isme/gema-appgrader/internal/handler"
	"github.com/noah-isme/gema-appgrader/internal/middleware"
	"github.com/noah-isme/gema-appgrader/internal/repository"
	"github.com/noah-isme/gema-appgrader/internal/router"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
	"github.com/noah-isme/gema-appgrader/pkg/events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, submission events stay on nats only")
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName+"-api")
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, submission events stay on redis only")
		} else {
			defer natsConn.Drain()
		}
	}

	var publisher service.SubmissionPublisher
	if redisClient != nil || natsConn != nil {
		publisher = events.NewBus(natsConn, redisClient, cfg.NATSSubject, logger)
	}

	validate := utils.NewValidator()
	store := repository.NewStore(db)

	gate := service.NewSubmissionGate(store, validate, publisher, logger)
	queries := service.NewQueryService(store)
	forms := service.NewFormService(store.Forms, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		NotifyHandler: handler.NewNotifyHandler(gate, logger),
		QueryHandler:  handler.NewQueryHandler(queries, logger),
		FormHandler:   handler.NewFormHandler(forms, logger),
		Health: handler.HealthOptions{
			Database: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			Components: map[string]bool{
				"events": publisher != nil,
				"auth":   cfg.JWTSecret != "",
			},
		},
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("evaluation api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
