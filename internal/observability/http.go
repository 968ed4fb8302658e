package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecordRequest counts one served request and its latency. Responses of 400 and above
// also land in the error counter.
func RecordRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	APIRequests().WithLabelValues(method, route, code).Inc()
	APILatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
	if status >= fiber.StatusBadRequest {
		APIErrors().WithLabelValues(method, route, code).Inc()
	}
}

// MetricsHandler serves the grader's collectors on /metrics for both servers.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
