package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-appgrader/internal/middleware"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
)

const (
	msgInvalidBody   = "No JSON data provided"
	msgStorageFault  = "Failed to store repo submission"
	msgInternalError = "Internal server error"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrValidation)
}

// parseBody decodes the JSON body and writes the 400 reply itself when it fails.
func parseBody(c *fiber.Ctx, out interface{}) (bool, error) {
	if len(c.Body()) == 0 {
		return false, utils.SendError(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	if err := c.BodyParser(out); err != nil {
		return false, utils.SendError(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	return true, nil
}
