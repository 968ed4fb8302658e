package ratelimit

import (
	"context"
	"sync"
	"time"
)

type identityLog struct {
	mu   sync.Mutex
	hits []time.Time
}

// MemoryLimiter keeps a sliding log of request times per identity. Each identity has
// its own lock so busy callers do not contend with each other.
type MemoryLimiter struct {
	windows []Window
	now     func() time.Time

	mu   sync.Mutex
	logs map[string]*identityLog
}

// NewMemoryLimiter builds an in-process limiter. A nil clock uses time.Now.
func NewMemoryLimiter(windows []Window, now func() time.Time) *MemoryLimiter {
	if len(windows) == 0 {
		windows = DefaultWindows()
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		windows: windows,
		now:     now,
		logs:    make(map[string]*identityLog),
	}
}

func (l *MemoryLimiter) logFor(identity string) *identityLog {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.logs[identity]
	if !ok {
		entry = &identityLog{}
		l.logs[identity] = entry
	}
	return entry
}

// Allow records a request for identity when every window still has budget.
func (l *MemoryLimiter) Allow(_ context.Context, identity string) (Decision, error) {
	now := l.now()
	entry := l.logFor(identity)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.hits = pruneBefore(entry.hits, now.Add(-longestPeriod(l.windows)))

	for _, w := range l.windows {
		cutoff := now.Add(-w.Period)
		count := 0
		var oldest time.Time
		for _, hit := range entry.hits {
			if hit.After(cutoff) {
				if count == 0 {
					oldest = hit
				}
				count++
			}
		}
		if count >= w.Limit {
			return Decision{
				Allowed:    false,
				Window:     w.Name,
				RetryAfter: oldest.Add(w.Period).Sub(now),
			}, nil
		}
	}

	entry.hits = append(entry.hits, now)
	return Decision{Allowed: true}, nil
}

// Evict drops identities with no requests inside the longest window and returns how many
// were removed.
func (l *MemoryLimiter) Evict() int {
	cutoff := l.now().Add(-longestPeriod(l.windows))

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, entry := range l.logs {
		entry.mu.Lock()
		entry.hits = pruneBefore(entry.hits, cutoff)
		empty := len(entry.hits) == 0
		entry.mu.Unlock()
		if empty {
			delete(l.logs, identity)
			removed++
		}
	}
	return removed
}

// Run evicts stale identities every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Evict()
		}
	}
}

// Tracked reports how many identities currently hold state.
func (l *MemoryLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}

func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(hits) && !hits[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return hits
	}
	return append(hits[:0:0], hits[idx:]...)
}
