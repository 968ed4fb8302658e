package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single task delivery.
const DefaultTimeout = 30 * time.Second

var deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "appgrader",
	Subsystem: "delivery",
	Name:      "attempts_total",
	Help:      "Task delivery attempts grouped by returned status.",
}, []string{"status"})

// Client posts task payloads to student endpoints. Only the numeric status is kept;
// retries are owned by the sweeps that call it.
type Client struct {
	http   *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewClient builds a delivery client. A nil http client gets one with DefaultTimeout.
func NewClient(httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		http:   httpClient,
		tracer: otel.Tracer("github.com/noah-isme/gema-appgrader/pkg/delivery"),
		logger: logger.With().Str("component", "task_delivery").Logger(),
	}
}

// Post sends payload as JSON and returns the response status code. Transport faults
// and timeouts are returned as errors with a zero status.
func (c *Client) Post(ctx context.Context, endpoint string, payload interface{}) (int, error) {
	ctx, span := c.tracer.Start(ctx, "delivery.post", trace.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode payload")
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		deliveryAttempts.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "post task")
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("task delivery failed")
		return 0, fmt.Errorf("post task: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	deliveryAttempts.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, nil
}
