// Package ratelimit implements a per-identifier request limiter over the
// shared KV abstraction, plus a best-effort cache for validated API keys.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/domain"
)

const ratePrefix = "rl:"

// Result is the outcome of one limit check.
type Result struct {
	Allowed    bool
	Count      int64
	RetryAfter int // seconds until the window resets; 0 when allowed
}

// Limiter counts requests per identifier within a time window.
//
// The scheme is fixed-window-with-reset-on-first-hit, not a true rolling
// window: the increment that creates the counter also sets the expiry, and
// every later hit lands in the same window until the key expires. Counts are
// independent per identifier.
//
// A KV failure degrades to allow: losing rate limiting briefly is preferable
// to rejecting all traffic.
type Limiter struct {
	kv     domain.KV
	limit  int64
	window time.Duration
	logger *zap.Logger
}

// NewLimiter creates a limiter allowing limit requests per window.
func NewLimiter(kv domain.KV, limit int64, window time.Duration, logger *zap.Logger) *Limiter {
	if limit < 1 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		kv:     kv,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// CheckLimit counts a request against identifier's window. The identifier can
// be any string: API key, user id, IP address.
func (l *Limiter) CheckLimit(ctx context.Context, identifier string) Result {
	key := ratePrefix + identifier

	count, err := l.kv.Increment(ctx, key)
	if err != nil {
		l.logger.Warn("rate limiter store unavailable, allowing request",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return Result{Allowed: true, Count: 0}
	}

	// The increment that created the counter opens the window.
	if count == 1 {
		if err := l.kv.Expire(ctx, key, l.window); err != nil {
			l.logger.Warn("failed to set rate limit window expiry",
				zap.String("identifier", identifier),
				zap.Error(err),
			)
		}
	}

	if count <= l.limit {
		return Result{Allowed: true, Count: count}
	}

	retryAfter := 1
	if ttl, err := l.kv.TTL(ctx, key); err != nil {
		l.logger.Warn("failed to read rate limit TTL",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
	} else if secs := int(ttl.Seconds()); secs > 1 {
		retryAfter = secs
	}

	return Result{Allowed: false, Count: count, RetryAfter: retryAfter}
}
