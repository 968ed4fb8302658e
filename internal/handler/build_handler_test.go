package handler_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/handler"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
)

type stubBuilder struct {
	resp dto.BuildResponse
	err  error
}

func (s stubBuilder) Build(context.Context, dto.BuildRequest) (dto.BuildResponse, error) {
	return s.resp, s.err
}

func buildApp(svc service.BuildService) *fiber.App {
	app := fiber.New()
	handler.NewBuildHandler(svc, zerolog.Nop()).Register(app.Group("/api"))
	return app
}

func validBuild() dto.BuildRequest {
	return dto.BuildRequest{
		Email:         "a@x.edu",
		Secret:        "s3cret",
		Task:          "todo-manager-1a2b3",
		Round:         1,
		Nonce:         uuid.NewString(),
		Brief:         "Build a todo manager",
		EvaluationURL: "https://grader.example/api/notify",
	}
}

func TestBuildHandler_SuccessContract(t *testing.T) {
	app := buildApp(stubBuilder{resp: dto.BuildResponse{
		RepoURL:            "https://github.com/a/todo-manager-1a2b3-0f1e2d3c",
		CommitSHA:          "abc123",
		PagesURL:           "https://a.github.io/todo-manager-1a2b3-0f1e2d3c/",
		PagesEnabled:       true,
		EvaluationNotified: true,
	}})

	resp := postJSON(t, app, "/api/build", validBuild())
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	requireContract(t, resp, "build")
}

func TestBuildHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"bad secret", service.ErrInvalidSecret, fiber.StatusUnauthorized},
		{"unsafe files", fmt.Errorf("%w: secret found", service.ErrUnsafeContent), fiber.StatusUnprocessableEntity},
		{"no publisher", service.ErrPublisherUnavailable, fiber.StatusInternalServerError},
		{"publish failed", fmt.Errorf("%w: 502", service.ErrPublishFailed), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, buildApp(stubBuilder{err: tc.err}), "/api/build", validBuild())
			require.Equal(t, tc.status, resp.StatusCode)
			requireContract(t, resp, "status")
		})
	}
}

func TestBuildHandler_RateLimitedSetsRetryAfter(t *testing.T) {
	app := buildApp(stubBuilder{err: &service.RateLimitError{Window: "minute", RetryAfter: 1500 * time.Millisecond}})

	resp := postJSON(t, app, "/api/build", validBuild())
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))

	var body utils.StatusResponse
	decodeResponse(t, resp, &body)
	require.Equal(t, "Too many requests per minute", body.Error)
}

func TestBuildHandler_ValidationNamesField(t *testing.T) {
	app := buildApp(service.NewBuildService(service.BuildConfig{}, utils.NewValidator(), zerolog.Nop()))

	req := validBuild()
	req.Brief = ""
	resp := postJSON(t, app, "/api/build", req)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body utils.StatusResponse
	decodeResponse(t, resp, &body)
	require.Equal(t, "Missing required field: brief", body.Error)
}
