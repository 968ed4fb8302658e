package evaluation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultReachabilityTimeout bounds the deployment fetch.
const DefaultReachabilityTimeout = 10 * time.Second

// ReachabilityCheck fetches the deployed page.
type ReachabilityCheck struct {
	client *http.Client
}

// NewPagesClient returns a client that retries once on transport errors and 5xx answers.
// When retries run out the last response is handed back, so the caller still sees the
// status code of a page that keeps failing.
func NewPagesClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultReachabilityTimeout
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 1
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

// NewReachabilityCheck builds the check. A nil client gets NewPagesClient with the
// default timeout.
func NewReachabilityCheck(client *http.Client) *ReachabilityCheck {
	if client == nil {
		client = NewPagesClient(DefaultReachabilityTimeout)
	}
	return &ReachabilityCheck{client: client}
}

// Run reports 1.0 when the page answers with a 2xx status.
func (c *ReachabilityCheck) Run(ctx context.Context, pagesURL string) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pagesURL, nil)
	if err != nil {
		return Outcome{Name: CheckReachability, Score: 0, Reason: "invalid pages url", Logs: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Outcome{Name: CheckReachability, Score: 0, Reason: "Pages not reachable", Logs: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{
			Name:   CheckReachability,
			Score:  0,
			Reason: fmt.Sprintf("Pages not accessible (HTTP %d)", resp.StatusCode),
		}
	}
	return Outcome{
		Name:   CheckReachability,
		Score:  1,
		Reason: fmt.Sprintf("Pages accessible (HTTP %d)", resp.StatusCode),
	}
}
