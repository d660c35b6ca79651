package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/domain"
)

const validKeyPrefix = "apikey:valid:"

// KeyCache remembers credentials that already passed validation so inbound
// requests skip re-validating on every call. It is best-effort: when the
// store is unavailable the caller must fall back to direct validation, never
// reject the credential.
type KeyCache struct {
	kv     domain.KV
	ttl    time.Duration
	logger *zap.Logger
}

// NewKeyCache creates a key cache with the given entry TTL.
func NewKeyCache(kv domain.KV, ttl time.Duration, logger *zap.Logger) *KeyCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &KeyCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// IsCachedValid reports whether the key was previously validated and the
// cache entry is still live. False on store failure, so the caller validates
// directly.
func (c *KeyCache) IsCachedValid(ctx context.Context, apiKey string) bool {
	ok, err := c.kv.Exists(ctx, validKeyPrefix+apiKey)
	if err != nil {
		c.logger.Warn("key cache unavailable, falling back to direct validation", zap.Error(err))
		return false
	}
	return ok
}

// CacheValidKey stores a validated key with the configured TTL. Failures are
// logged and swallowed; caching is an optimization, not a requirement.
func (c *KeyCache) CacheValidKey(ctx context.Context, apiKey string) {
	if err := c.kv.SetWithTTL(ctx, validKeyPrefix+apiKey, "1", c.ttl); err != nil {
		c.logger.Warn("failed to cache validated key", zap.Error(err))
	}
}

// Invalidate removes a key from the cache (e.g. on revocation).
func (c *KeyCache) Invalidate(ctx context.Context, apiKey string) {
	if err := c.kv.Delete(ctx, validKeyPrefix+apiKey); err != nil {
		c.logger.Warn("failed to invalidate cached key", zap.Error(err))
	}
}
