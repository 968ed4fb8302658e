package utils

import "github.com/gofiber/fiber/v2"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// StatusResponse is the envelope shared by every grading endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendSuccess replies 200 with a success envelope. Extra fields are merged at the top level.
func SendSuccess(c *fiber.Ctx, message string, extra fiber.Map) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, extra)
}

// SendSuccessWithStatus is SendSuccess with an explicit status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, extra fiber.Map) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if len(extra) == 0 {
		return c.Status(status).JSON(StatusResponse{Status: statusSuccess, Message: message})
	}

	body := fiber.Map{"status": statusSuccess}
	if message != "" {
		body["message"] = message
	}
	for key, value := range extra {
		if key == "status" {
			continue
		}
		body[key] = value
	}
	return c.Status(status).JSON(body)
}

// SendCollection replies 200 with items under key and their count.
func SendCollection(c *fiber.Ctx, key string, items interface{}, count int) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": statusSuccess,
		key:      items,
		"count":  count,
	})
}

// SendError replies with an error envelope.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = "error"
	}
	return c.Status(status).JSON(StatusResponse{Status: statusError, Error: message})
}
