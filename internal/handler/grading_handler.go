package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
)

const msgTaskNotMatched = "No matching task found for the provided email, task, round, and nonce"

// NotifyHandler receives build-completion notifications from student agents.
type NotifyHandler struct {
	gate   service.SubmissionGate
	logger zerolog.Logger
}

// NewNotifyHandler constructs the notification handler.
func NewNotifyHandler(gate service.SubmissionGate, logger zerolog.Logger) *NotifyHandler {
	return &NotifyHandler{
		gate:   gate,
		logger: logger.With().Str("component", "notify_handler").Logger(),
	}
}

// Register mounts the notify route.
func (h *NotifyHandler) Register(router fiber.Router, middlewares ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, middlewares...), h.Notify)
	router.Post("/notify", handlers...)
}

// Notify records a submission when it traces back to an issued task.
func (h *NotifyHandler) Notify(c *fiber.Ctx) error {
	var req dto.NotifyRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	logger := requestLogger(h.logger, c)
	_, err := h.gate.Accept(c.UserContext(), req)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTaskNotMatched):
			return utils.SendError(c, fiber.StatusBadRequest, msgTaskNotMatched)
		case errors.Is(err, service.ErrStorage):
			logger.Error().Err(err).Msg("failed to store submission")
			return utils.SendError(c, fiber.StatusInternalServerError, msgStorageFault)
		default:
			logger.Error().Err(err).Msg("submission gate failed")
			return utils.SendError(c, fiber.StatusInternalServerError, msgInternalError)
		}
	}

	return utils.SendSuccess(c, "Repo submission received", nil)
}
