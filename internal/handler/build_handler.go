package handler

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
)

// BuildHandler is the student agent's task intake.
type BuildHandler struct {
	service service.BuildService
	logger  zerolog.Logger
}

// NewBuildHandler constructs the build handler.
func NewBuildHandler(svc service.BuildService, logger zerolog.Logger) *BuildHandler {
	return &BuildHandler{
		service: svc,
		logger:  logger.With().Str("component", "build_handler").Logger(),
	}
}

// Register mounts the build route.
func (h *BuildHandler) Register(router fiber.Router, middlewares ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, middlewares...), h.Build)
	router.Post("/build", handlers...)
}

// Build generates, publishes and reports an app for the received task.
func (h *BuildHandler) Build(c *fiber.Ctx) error {
	var req dto.BuildRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	logger := requestLogger(h.logger, c)
	resp, err := h.service.Build(c.UserContext(), req)
	if err != nil {
		var limited *service.RateLimitError
		switch {
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInvalidSecret):
			return utils.SendError(c, fiber.StatusUnauthorized, "Invalid secret")
		case errors.As(err, &limited):
			seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
			return utils.SendError(c, fiber.StatusTooManyRequests, limited.Error())
		case errors.Is(err, service.ErrUnsafeContent):
			logger.Warn().Err(err).Msg("generated files rejected")
			return utils.SendError(c, fiber.StatusUnprocessableEntity, "Generated files failed security validation")
		case errors.Is(err, service.ErrPublisherUnavailable):
			return utils.SendError(c, fiber.StatusInternalServerError, "GitHub integration not configured")
		default:
			logger.Error().Err(err).Msg("build failed")
			return utils.SendError(c, fiber.StatusInternalServerError, msgInternalError)
		}
	}

	return utils.SendSuccess(c, "Application deployed", fiber.Map{
		"repo_url":            resp.RepoURL,
		"commit_sha":          resp.CommitSHA,
		"pages_url":           resp.PagesURL,
		"pages_enabled":       resp.PagesEnabled,
		"evaluation_notified": resp.EvaluationNotified,
	})
}
