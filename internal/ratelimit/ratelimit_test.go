package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/abyssorcdev/duppla/internal/cache"
	"github.com/abyssorcdev/duppla/internal/domain"
)

// brokenKV fails every operation, simulating an unreachable store.
type brokenKV struct{}

var errKVDown = errors.New("kv unavailable")

func (brokenKV) Get(context.Context, string) (string, bool, error)     { return "", false, errKVDown }
func (brokenKV) SetWithTTL(context.Context, string, string, time.Duration) error { return errKVDown }
func (brokenKV) Delete(context.Context, string) error                  { return errKVDown }
func (brokenKV) Increment(context.Context, string) (int64, error)      { return 0, errKVDown }
func (brokenKV) TTL(context.Context, string) (time.Duration, error)    { return 0, errKVDown }
func (brokenKV) Exists(context.Context, string) (bool, error)          { return false, errKVDown }
func (brokenKV) Expire(context.Context, string, time.Duration) error   { return errKVDown }

var _ domain.KV = brokenKV{}

// TestCheckLimitWindow verifies the allow/deny boundary at the configured
// limit
func TestCheckLimitWindow(t *testing.T) {
	kv := cache.NewMemoryKV(4)
	limiter := NewLimiter(kv, 10, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		result := limiter.CheckLimit(ctx, "client-a")
		assert.True(t, result.Allowed, "request %d inside the limit", i)
		assert.Equal(t, int64(i), result.Count)
	}

	result := limiter.CheckLimit(ctx, "client-a")
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(11), result.Count)
	assert.GreaterOrEqual(t, result.RetryAfter, 1)
	assert.LessOrEqual(t, result.RetryAfter, 60)
}

// TestCheckLimitPerIdentifier verifies counters are independent
func TestCheckLimitPerIdentifier(t *testing.T) {
	kv := cache.NewMemoryKV(4)
	limiter := NewLimiter(kv, 1, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.True(t, limiter.CheckLimit(ctx, "client-a").Allowed)
	assert.False(t, limiter.CheckLimit(ctx, "client-a").Allowed)
	assert.True(t, limiter.CheckLimit(ctx, "client-b").Allowed, "other clients keep their own window")
}

// TestCheckLimitDegradesToAllow verifies a broken store never blocks traffic
func TestCheckLimitDegradesToAllow(t *testing.T) {
	limiter := NewLimiter(brokenKV{}, 1, time.Minute, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		result := limiter.CheckLimit(context.Background(), "client-a")
		assert.True(t, result.Allowed)
	}
}

// TestCheckLimitWindowExpiry verifies the counter resets once the window
// passes
func TestCheckLimitWindowExpiry(t *testing.T) {
	kv := cache.NewMemoryKV(4)
	limiter := NewLimiter(kv, 1, 50*time.Millisecond, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.True(t, limiter.CheckLimit(ctx, "client-a").Allowed)
	assert.False(t, limiter.CheckLimit(ctx, "client-a").Allowed)

	time.Sleep(80 * time.Millisecond)
	result := limiter.CheckLimit(ctx, "client-a")
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(1), result.Count, "a fresh window starts counting from one")
}

// TestCheckLimitConcurrent verifies the counter never loses increments under
// contention
func TestCheckLimitConcurrent(t *testing.T) {
	kv := cache.NewMemoryKV(16)
	limiter := NewLimiter(kv, 50, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	const requests = 100
	var wg sync.WaitGroup
	var allowed atomic.Int64

	wg.Add(requests)
	for i := 0; i < requests; i++ {
		go func() {
			defer wg.Done()
			if limiter.CheckLimit(ctx, "client-a").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load(), "exactly the limit must pass")
}

// TestKeyCache verifies the cache round trip and invalidation
func TestKeyCache(t *testing.T) {
	kv := cache.NewMemoryKV(4)
	kc := NewKeyCache(kv, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.False(t, kc.IsCachedValid(ctx, "key-1"))

	kc.CacheValidKey(ctx, "key-1")
	assert.True(t, kc.IsCachedValid(ctx, "key-1"))
	assert.False(t, kc.IsCachedValid(ctx, "key-2"))

	kc.Invalidate(ctx, "key-1")
	assert.False(t, kc.IsCachedValid(ctx, "key-1"))
}

// TestKeyCacheTTL verifies entries expire
func TestKeyCacheTTL(t *testing.T) {
	kv := cache.NewMemoryKV(4)
	kc := NewKeyCache(kv, 50*time.Millisecond, zaptest.NewLogger(t))
	ctx := context.Background()

	kc.CacheValidKey(ctx, "key-1")
	assert.True(t, kc.IsCachedValid(ctx, "key-1"))

	time.Sleep(80 * time.Millisecond)
	assert.False(t, kc.IsCachedValid(ctx, "key-1"))
}

// TestKeyCacheFallsBackOnStoreFailure verifies a broken store reports a miss
// so callers validate directly
func TestKeyCacheFallsBackOnStoreFailure(t *testing.T) {
	kc := NewKeyCache(brokenKV{}, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.False(t, kc.IsCachedValid(ctx, "key-1"))
	// Writes are best-effort: no panic, no error surfaced.
	kc.CacheValidKey(ctx, "key-1")
	kc.Invalidate(ctx, "key-1")
}
