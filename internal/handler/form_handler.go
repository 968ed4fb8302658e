package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
)

// FormHandler accepts student endpoint registrations.
type FormHandler struct {
	service service.FormService
	logger  zerolog.Logger
}

// NewFormHandler constructs the registration handler.
func NewFormHandler(svc service.FormService, logger zerolog.Logger) *FormHandler {
	return &FormHandler{
		service: svc,
		logger:  logger.With().Str("component", "form_handler").Logger(),
	}
}

// Register mounts the form routes.
func (h *FormHandler) Register(router fiber.Router, middlewares ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, middlewares...), h.Submit)
	router.Post("/forms", handlers...)
}

// Submit stores or replaces the registration for an email.
func (h *FormHandler) Submit(c *fiber.Ctx) error {
	var req dto.FormEntryRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	entry, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to store registration")
		return utils.SendError(c, fiber.StatusInternalServerError, "Failed to store registration")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "Registration received", fiber.Map{
		"registration": entry,
	})
}
