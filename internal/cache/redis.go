package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abyssorcdev/duppla/internal/domain"
)

// RedisKV is a Redis-backed implementation of domain.KV. INCR gives the
// limiter its atomic per-key counter; everything else maps one-to-one onto
// Redis commands.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV creates a store from a Redis URL (redis://host:port/db).
func NewRedisKV(url string) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisKV{client: redis.NewClient(opts)}, nil
}

// Ping verifies the connection.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Get retrieves a value by key (implements domain.KV).
func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetWithTTL stores a value with an expiry (implements domain.KV).
func (r *RedisKV) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key (implements domain.KV).
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Increment atomically increments the counter at key (implements domain.KV).
func (r *RedisKV) Increment(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

// TTL returns the remaining time-to-live of a key (implements domain.KV).
func (r *RedisKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Redis reports -1 (no expiry) and -2 (no key) as negative durations.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Exists reports whether the key is present (implements domain.KV).
func (r *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Expire sets the time-to-live of an existing key (implements domain.KV).
func (r *RedisKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// Verify that RedisKV implements domain.KV interface
var _ domain.KV = (*RedisKV)(nil)
