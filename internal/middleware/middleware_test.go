package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "query-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func protectedApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/api/results", BearerAuth(secret), RequireRole(RoleInstructor, RoleGrader), func(c *fiber.Ctx) error {
		return c.SendString(Subject(c))
	})
	return app
}

func TestBearerAuthDisabledWithoutSecret(t *testing.T) {
	app := protectedApp("")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/results", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestBearerAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	app := protectedApp(testSecret)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/results", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", jwt.MapClaims{"sub": "x", "role": RoleInstructor}))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRoleChecksTokenRole(t *testing.T) {
	app := protectedApp(testSecret)

	allowed := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	allowed.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{
		"sub":  "ta@x.edu",
		"role": "Instructor",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}))
	resp, err := app.Test(allowed)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	denied := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	denied.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{
		"sub":   "student@x.edu",
		"roles": []string{"student"},
	}))
	resp, err = app.Test(denied)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestCorrelationIDIsReusedOrMinted(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-123", resp.Header.Get(HeaderCorrelationID))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Len(t, resp.Header.Get(HeaderCorrelationID), 36)
}

func TestClientRateLimitRejectsAfterMax(t *testing.T) {
	app := fiber.New()
	app.Post("/api/notify", ClientRateLimit("notify", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/notify", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/notify", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestRegisterRecoversPanicsAndExposesCorrelation(t *testing.T) {
	logger := zerolog.Nop()
	app := fiber.New()
	Register(app, Config{Logger: &logger, AllowOrigins: []string{"https://student.github.io"}})
	app.Get("/api/boom", func(*fiber.Ctx) error {
		panic("nil template")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/boom", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://student.github.io")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(HeaderCorrelationID))
	require.Equal(t, "https://student.github.io", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	require.Contains(t, resp.Header.Get(fiber.HeaderAccessControlExposeHeaders), HeaderCorrelationID)
}
