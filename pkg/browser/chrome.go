package browser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a whole browsing session.
const DefaultTimeout = 30 * time.Second

// DefaultSettle bounds how long a page may keep rewriting its body text after load.
const DefaultSettle = 3 * time.Second

const settleInterval = 250 * time.Millisecond

const bodyTextExpr = `document.body ? document.body.innerText : ""`

// PageRequest asks for one navigation and the element counts of the given CSS selectors.
type PageRequest struct {
	URL       string
	Selectors []string
}

// Snapshot is what a navigation rendered.
type Snapshot struct {
	URL      string
	Title    string
	BodyText string
	Counts   map[string]int
}

// Config tunes the headless Chrome driver.
type Config struct {
	ExecPath string
	Timeout  time.Duration
	// Settle caps the wait for script-rendered content to stop changing.
	Settle time.Duration
	Logger zerolog.Logger
}

// Chrome drives a headless Chrome instance through the DevTools protocol. Every call to
// Visit starts a fresh browser that is torn down before returning.
type Chrome struct {
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewChrome builds a Chrome driver.
func NewChrome(cfg Config) *Chrome {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	return &Chrome{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-appgrader/pkg/browser"),
		logger: cfg.Logger.With().Str("component", "browser").Logger(),
	}
}

// Visit navigates to each page in order inside one browser session.
func (c *Chrome) Visit(ctx context.Context, pages []PageRequest) ([]Snapshot, error) {
	ctx, span := c.tracer.Start(ctx, "browser.visit", trace.WithAttributes(
		attribute.Int("pages", len(pages)),
	))
	defer span.End()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, c.cfg.Timeout)
	defer cancelTimeout()

	snapshots := make([]Snapshot, 0, len(pages))
	for _, page := range pages {
		snapshot, err := c.capture(browserCtx, page)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "navigation failed")
			return snapshots, fmt.Errorf("visit %s: %w", page.URL, err)
		}
		snapshots = append(snapshots, snapshot)
	}

	span.SetStatus(codes.Ok, "")
	return snapshots, nil
}

func (c *Chrome) capture(ctx context.Context, page PageRequest) (Snapshot, error) {
	snapshot := Snapshot{URL: page.URL, Counts: make(map[string]int, len(page.Selectors))}

	actions := []chromedp.Action{
		chromedp.Navigate(page.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			text, err := waitForStableText(ctx, readBodyText, settleInterval, c.cfg.Settle)
			snapshot.BodyText = text
			return err
		}),
		chromedp.Title(&snapshot.Title),
	}

	counts := make([]int, len(page.Selectors))
	for i, selector := range page.Selectors {
		expr := "document.querySelectorAll(" + strconv.Quote(selector) + ").length"
		actions = append(actions, chromedp.Evaluate(expr, &counts[i]))
	}

	if err := chromedp.Run(ctx, actions...); err != nil {
		return Snapshot{}, err
	}

	for i, selector := range page.Selectors {
		snapshot.Counts[selector] = counts[i]
	}
	c.logger.Debug().Str("url", page.URL).Str("title", snapshot.Title).Msg("page captured")
	return snapshot, nil
}

func readBodyText(ctx context.Context) (string, error) {
	var text string
	err := chromedp.Evaluate(bodyTextExpr, &text).Do(ctx)
	return text, err
}

// waitForStableText reads the page text until two consecutive non-empty reads agree or
// maxWait elapses, and returns the last read. Pages that fill their body from script
// (fetch calls, query-string echoes) are still changing when the DOM is ready.
func waitForStableText(ctx context.Context, read func(context.Context) (string, error), interval, maxWait time.Duration) (string, error) {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last, err := read(ctx)
	if err != nil {
		return "", err
	}
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			return last, nil
		case <-ticker.C:
		}

		current, err := read(ctx)
		if err != nil {
			return last, err
		}
		if current == last && current != "" {
			return current, nil
		}
		last = current
	}
}
