package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed-window counters between processes. Counters are keyed
// by window slot and expire with it. Rejected requests still count against the
// window they landed in.
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	windows  []Window
	now      func() time.Time
	failOpen bool
}

// RedisLimiterConfig configures a RedisLimiter.
type RedisLimiterConfig struct {
	Client   *redis.Client
	Prefix   string
	Windows  []Window
	Now      func() time.Time
	FailOpen bool
}

// NewRedisLimiter builds a limiter backed by Redis.
func NewRedisLimiter(cfg RedisLimiterConfig) *RedisLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "appgrader-ratelimit"
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = DefaultWindows()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RedisLimiter{
		client:   cfg.Client,
		prefix:   cfg.Prefix,
		windows:  cfg.Windows,
		now:      cfg.Now,
		failOpen: cfg.FailOpen,
	}
}

// Allow increments every window counter for identity and rejects when any exceeds its limit.
func (l *RedisLimiter) Allow(ctx context.Context, identity string) (Decision, error) {
	now := l.now()

	pipe := l.client.TxPipeline()
	counters := make([]*redis.IntCmd, len(l.windows))
	for i, w := range l.windows {
		key := l.key(w, identity, now)
		counters[i] = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, w.Period)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: l.failOpen}, fmt.Errorf("rate limit counters: %w", err)
	}

	for i, w := range l.windows {
		if counters[i].Val() > int64(w.Limit) {
			windowEnd := now.Truncate(w.Period).Add(w.Period)
			return Decision{Allowed: false, Window: w.Name, RetryAfter: windowEnd.Sub(now)}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

func (l *RedisLimiter) key(w Window, identity string, now time.Time) string {
	seconds := int64(w.Period / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	slot := now.Unix() / seconds
	return l.prefix + "-" + w.Name + "-" + identity + "-" + strconv.FormatInt(slot, 10)
}
