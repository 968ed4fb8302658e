package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordRequestCountsErrorsSeparately(t *testing.T) {
	RecordRequest(http.MethodPost, "/api/test-notify", fiber.StatusOK, 10*time.Millisecond)
	RecordRequest(http.MethodPost, "/api/test-notify", fiber.StatusBadRequest, 5*time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(APIRequests().WithLabelValues(http.MethodPost, "/api/test-notify", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(APIErrors().WithLabelValues(http.MethodPost, "/api/test-notify", "400")))
	require.Equal(t, 0.0, testutil.ToFloat64(APIErrors().WithLabelValues(http.MethodPost, "/api/test-notify", "200")))
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	RecordRequest(http.MethodGet, "/api/test-tasks", fiber.StatusOK, time.Millisecond)

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "appgrader_requests_total")
	require.Contains(t, string(body), `route="/api/test-tasks"`)
}
