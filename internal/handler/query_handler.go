package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
)

// QueryHandler serves the read-only views over tasks, submissions and results.
type QueryHandler struct {
	service service.QueryService
	logger  zerolog.Logger
}

// NewQueryHandler constructs the query handler.
func NewQueryHandler(svc service.QueryService, logger zerolog.Logger) *QueryHandler {
	return &QueryHandler{
		service: svc,
		logger:  logger.With().Str("component", "query_handler").Logger(),
	}
}

// Register mounts the query routes behind the given middlewares.
func (h *QueryHandler) Register(router fiber.Router, middlewares ...fiber.Handler) {
	route := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, middlewares...), handler)
	}
	router.Get("/results", route(h.Results)...)
	router.Get("/tasks", route(h.Tasks)...)
	router.Get("/repos", route(h.Repos)...)
}

// Results lists check verdicts, optionally filtered by email and task.
func (h *QueryHandler) Results(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Query("email"))
	task := strings.TrimSpace(c.Query("task"))

	results, err := h.service.Results(c.UserContext(), email, task)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list results")
		return utils.SendError(c, fiber.StatusInternalServerError, msgInternalError)
	}
	return utils.SendCollection(c, "results", results, len(results))
}

// Tasks lists issued tasks, optionally filtered by email and round.
func (h *QueryHandler) Tasks(c *fiber.Ctx) error {
	round, err := parseQueryInt(c, "round")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid field: round")
	}

	tasks, err := h.service.Tasks(c.UserContext(), strings.TrimSpace(c.Query("email")), round)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list tasks")
		return utils.SendError(c, fiber.StatusInternalServerError, msgInternalError)
	}
	return utils.SendCollection(c, "tasks", tasks, len(tasks))
}

// Repos lists accepted submissions, optionally filtered by email and round.
func (h *QueryHandler) Repos(c *fiber.Ctx) error {
	round, err := parseQueryInt(c, "round")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid field: round")
	}

	repos, err := h.service.Submissions(c.UserContext(), strings.TrimSpace(c.Query("email")), round)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list submissions")
		return utils.SendError(c, fiber.StatusInternalServerError, msgInternalError)
	}
	return utils.SendCollection(c, "repos", repos, len(repos))
}
