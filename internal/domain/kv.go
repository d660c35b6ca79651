package domain

import (
	"context"
	"time"
)

// KV defines the cache/key-value abstraction shared by the rate limiter and
// the validated-key cache. Implementations must make Increment atomic per key;
// the limiter relies on incr-then-maybe-expire never racing a concurrent
// window reset.
type KV interface {
	// Get retrieves a value by key. The second return is false if the key is
	// absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithTTL stores a value that expires after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Increment atomically increments the counter at key and returns the new
	// value. A missing key counts from zero.
	Increment(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining time-to-live of a key. Zero or negative means
	// the key is absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Exists reports whether the key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire sets the time-to-live of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
