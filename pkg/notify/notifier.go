package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxAttempts is the number of callback attempts before giving up.
	DefaultMaxAttempts = 5
	// DefaultBaseDelay is the wait before the second attempt; it doubles afterwards.
	DefaultBaseDelay = time.Second
	// DefaultTimeout bounds each individual attempt.
	DefaultTimeout = 30 * time.Second
)

// ErrNotificationFailed is returned once every attempt has been used up.
var ErrNotificationFailed = errors.New("notification failed after all attempts")

var notifyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "appgrader",
	Subsystem: "notify",
	Name:      "attempts_total",
	Help:      "Build completion callback attempts grouped by outcome.",
}, []string{"outcome"})

// Config tunes the retry schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// Report describes how a notification went.
type Report struct {
	Attempts   int
	StatusCode int
}

// Notifier delivers build completion callbacks with bounded exponential backoff.
type Notifier struct {
	http        *http.Client
	maxAttempts int
	backoff     func() retry.Backoff
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// Backoff returns the schedule used between attempts: base, 2*base, 4*base and so on,
// stopping after maxAttempts-1 waits.
func Backoff(base time.Duration, maxAttempts int) retry.Backoff {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := retry.NewExponential(base)
	return retry.WithMaxRetries(uint64(maxAttempts-1), b)
}

// New builds a notifier from cfg, filling in defaults for zero values.
func New(httpClient *http.Client, cfg Config, logger zerolog.Logger) *Notifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	return NewWithBackoff(httpClient, cfg.MaxAttempts, cfg.Timeout, func() retry.Backoff {
		return Backoff(cfg.BaseDelay, cfg.MaxAttempts)
	}, logger)
}

// NewWithBackoff allows callers to inject the retry schedule.
func NewWithBackoff(httpClient *http.Client, maxAttempts int, timeout time.Duration, factory func() retry.Backoff, logger zerolog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Notifier{
		http:        httpClient,
		maxAttempts: maxAttempts,
		backoff:     factory,
		tracer:      otel.Tracer("github.com/noah-isme/gema-appgrader/pkg/notify"),
		logger:      logger.With().Str("component", "retry_notifier").Logger(),
	}
}

// Notify posts payload to url until a 2xx response arrives or attempts run out.
func (n *Notifier) Notify(ctx context.Context, url string, payload interface{}) (Report, error) {
	ctx, span := n.tracer.Start(ctx, "notify.deliver", trace.WithAttributes(
		attribute.String("url", url),
		attribute.Int("max_attempts", n.maxAttempts),
	))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode payload")
		return Report{}, fmt.Errorf("encode payload: %w", err)
	}

	var (
		report  Report
		lastErr error
	)
	err = retry.Do(ctx, n.backoff(), func(ctx context.Context) error {
		report.Attempts++
		status, err := n.post(ctx, url, body)
		report.StatusCode = status
		if err != nil {
			lastErr = err
			notifyAttempts.WithLabelValues("error").Inc()
			n.logger.Warn().Err(err).Int("attempt", report.Attempts).Msg("notification attempt failed")
			return retry.RetryableError(err)
		}
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("unexpected status %d", status)
			notifyAttempts.WithLabelValues("rejected").Inc()
			n.logger.Warn().Int("status", status).Int("attempt", report.Attempts).Msg("notification rejected")
			return retry.RetryableError(lastErr)
		}
		notifyAttempts.WithLabelValues("delivered").Inc()
		return nil
	})
	span.SetAttributes(attribute.Int("attempts", report.Attempts))
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "notification failed")
		return report, fmt.Errorf("%w: %v", ErrNotificationFailed, lastErr)
	}

	n.logger.Info().Int("attempts", report.Attempts).Msg("notification delivered")
	return report, nil
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, nil
}
