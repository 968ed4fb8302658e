package handler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/handler"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
)

type stubForms struct {
	last dto.FormEntryRequest
	err  error
}

func (s *stubForms) Register(_ context.Context, req dto.FormEntryRequest) (dto.FormEntryResponse, error) {
	s.last = req
	if s.err != nil {
		return dto.FormEntryResponse{}, s.err
	}
	return dto.FormEntryResponse{Email: req.Email, Endpoint: req.Endpoint, Timestamp: time.Now().UTC()}, nil
}

func (s *stubForms) Import(context.Context, []service.Registration) service.SweepSummary {
	return service.SweepSummary{}
}

func (s *stubForms) Registrations(context.Context) ([]service.Registration, error) {
	return nil, nil
}

func TestFormHandler_Created(t *testing.T) {
	forms := &stubForms{}
	app := fiber.New()
	handler.NewFormHandler(forms, zerolog.Nop()).Register(app.Group("/api"))

	resp := postJSON(t, app, "/api/forms", dto.FormEntryRequest{
		Email:    "a@x.edu",
		Endpoint: "https://student.example/api/build",
		Secret:   "s3cret",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Status       string                `json:"status"`
		Registration dto.FormEntryResponse `json:"registration"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "success", body.Status)
	require.Equal(t, "a@x.edu", body.Registration.Email)
	require.Equal(t, "s3cret", forms.last.Secret)
}

func TestFormHandler_Failures(t *testing.T) {
	// A real service with no repository fails validation before touching storage.
	app := fiber.New()
	handler.NewFormHandler(service.NewFormService(nil, utils.NewValidator(), zerolog.Nop()), zerolog.Nop()).Register(app.Group("/api"))

	resp := postJSON(t, app, "/api/forms", dto.FormEntryRequest{Email: "a@x.edu", Secret: "s"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	var body utils.StatusResponse
	decodeResponse(t, resp, &body)
	require.Equal(t, "Missing required field: endpoint", body.Error)

	app = fiber.New()
	handler.NewFormHandler(&stubForms{err: errors.New("locked")}, zerolog.Nop()).Register(app.Group("/api"))
	resp = postJSON(t, app, "/api/forms", dto.FormEntryRequest{Email: "a@x.edu", Endpoint: "https://s.example", Secret: "s"})
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
