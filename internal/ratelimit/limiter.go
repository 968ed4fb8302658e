package ratelimit

import (
	"context"
	"time"
)

// Window is one fixed budget of requests per identity.
type Window struct {
	Name   string
	Limit  int
	Period time.Duration
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	Window     string
	RetryAfter time.Duration
}

// Limiter decides whether an identity may perform another request.
type Limiter interface {
	Allow(ctx context.Context, identity string) (Decision, error)
}

// DefaultWindows allows two requests per minute and ten per hour.
func DefaultWindows() []Window {
	return []Window{
		{Name: "minute", Limit: 2, Period: time.Minute},
		{Name: "hour", Limit: 10, Period: time.Hour},
	}
}

// Windows builds the minute and hour budgets from configured values, falling back to defaults.
func Windows(perMinute, perHour int) []Window {
	windows := DefaultWindows()
	if perMinute > 0 {
		windows[0].Limit = perMinute
	}
	if perHour > 0 {
		windows[1].Limit = perHour
	}
	return windows
}

func longestPeriod(windows []Window) time.Duration {
	var longest time.Duration
	for _, w := range windows {
		if w.Period > longest {
			longest = w.Period
		}
	}
	return longest
}
