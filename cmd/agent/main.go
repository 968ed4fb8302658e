package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/config"
	"github.com/noah-isme/gema-appgrader/internal/database"
	"github.com/noah-isme/gema-appgrader/internal/handler"
	"github.com/noah-isme/gema-appgrader/internal/middleware"
	"github.com/noah-isme/gema-appgrader/internal/ratelimit"
	"github.com/noah-isme/gema-appgrader/internal/router"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
	"github.com/noah-isme/gema-appgrader/pkg/ai"
	"github.com/noah-isme/gema-appgrader/pkg/notify"
	"github.com/noah-isme/gema-appgrader/pkg/publisher"
)

const limiterEvictInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "agent").Logger()

	if cfg.StudentSecret == "" {
		logger.Warn().Msg("APPGRADER_STUDENT_SECRET is not set, every build request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buildCfg := service.BuildConfig{
		StudentSecret: cfg.StudentSecret,
		Notifier: notify.New(&http.Client{Timeout: cfg.NotifyTimeout}, notify.Config{
			MaxAttempts: cfg.NotifyMaxAttempts,
			BaseDelay:   cfg.NotifyBaseDelay,
			Timeout:     cfg.NotifyTimeout,
		}, logger),
		Limiter: newLimiter(ctx, cfg, logger),
	}

	if cfg.GitHubToken != "" {
		pub, err := publisher.New(cfg.GitHubToken, logger)
		if err != nil {
			log.Fatalf("failed to create github publisher: %v", err)
		}
		buildCfg.Publisher = pub
	} else {
		logger.Warn().Msg("APPGRADER_GITHUB_TOKEN is not set, builds cannot be published")
	}

	if cfg.OracleEnabled() {
		generator, err := ai.NewOpenAIClient(ai.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.AIModel,
			BaseURL:   cfg.AIBaseURL,
			MaxTokens: 4000,
			Timeout:   90 * time.Second,
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("failed to create openai client: %v", err)
		}
		buildCfg.Generator = generator
	} else {
		logger.Info().Msg("no openai key configured, builds use the fallback page")
	}

	builds := service.NewBuildService(buildCfg, utils.NewValidator(), logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName + " Agent",
		ServerHeader: cfg.AppName,
		BodyLimit:    8 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.RegisterAgent(app, cfg, router.Dependencies{
		BuildHandler: handler.NewBuildHandler(builds, logger),
		Health: handler.HealthOptions{
			Components: map[string]bool{
				"github": buildCfg.Publisher != nil,
				"openai": buildCfg.Generator != nil,
				"secret": cfg.StudentSecret != "",
			},
		},
	})

	go func() {
		logger.Info().Str("addr", cfg.AgentAddress()).Msg("build agent listening")
		if err := app.Listen(cfg.AgentAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("agent stopped")
}

// newLimiter prefers Redis so several agent replicas share one quota, and falls back
// to an in-process limiter whose idle identities are evicted in the background.
func newLimiter(ctx context.Context, cfg config.Config, logger zerolog.Logger) ratelimit.Limiter {
	windows := ratelimit.Windows(cfg.RateLimitPerMinute, cfg.RateLimitPerHour)

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err == nil {
			go func() {
				<-ctx.Done()
				_ = client.Close()
			}()
			return ratelimit.NewRedisLimiter(ratelimit.RedisLimiterConfig{
				Client:   client,
				Windows:  windows,
				FailOpen: true,
			})
		}
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory rate limiter")
	}

	limiter := ratelimit.NewMemoryLimiter(windows, nil)
	go limiter.Run(ctx, limiterEvictInterval)
	return limiter
}
