package cache

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/abyssorcdev/duppla/internal/domain"
)

const (
	defaultShardCount      = 16
	defaultCleanupInterval = 1 * time.Minute
)

// entry is a stored value with optional expiration. A zero expiresAt means the
// key never expires.
type entry struct {
	value     string
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type shard struct {
	mu    sync.Mutex
	items map[string]*entry
}

// MemoryKV is a thread-safe sharded in-memory key-value store implementing
// domain.KV. Increment is atomic per key: the shard lock covers the whole
// read-modify-write, so a window counter can never race its own expiry reset.
type MemoryKV struct {
	shards     []*shard
	shardCount int

	cleanupInterval time.Duration
	cleanupRunning  bool
	cleanupMu       sync.Mutex
	cleanupStop     chan struct{}
	cleanupWg       sync.WaitGroup
}

// NewMemoryKV creates a sharded in-memory store.
func NewMemoryKV(shardCount int) *MemoryKV {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{items: make(map[string]*entry)}
	}
	return &MemoryKV{
		shards:          shards,
		shardCount:      shardCount,
		cleanupInterval: defaultCleanupInterval,
		cleanupStop:     make(chan struct{}),
	}
}

// SetCleanupInterval overrides the cleanup worker period. Call before
// StartCleanupWorker.
func (c *MemoryKV) SetCleanupInterval(d time.Duration) {
	if d > 0 {
		c.cleanupInterval = d
	}
}

func (c *MemoryKV) getShard(key string) *shard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.shardCount)]
}

// Get retrieves a value by key (implements domain.KV).
func (c *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(time.Now()) {
		return "", false, nil
	}
	return item.value, true, nil
}

// SetWithTTL stores a value with an expiry (implements domain.KV).
func (c *MemoryKV) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = e
	return nil
}

// Delete removes a key (implements domain.KV).
func (c *MemoryKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Increment atomically increments the counter at key (implements domain.KV).
// An expired counter restarts from zero, matching Redis INCR semantics.
func (c *MemoryKV) Increment(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	item, ok := s.items[key]
	if ok && !item.expired(time.Now()) {
		prev, err := strconv.ParseInt(item.value, 10, 64)
		if err != nil {
			return 0, err
		}
		count = prev + 1
		item.value = strconv.FormatInt(count, 10)
		return count, nil
	}

	count = 1
	s.items[key] = &entry{value: "1"}
	return count, nil
}

// TTL returns the remaining time-to-live of a key (implements domain.KV).
func (c *MemoryKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expiresAt.IsZero() {
		return 0, nil
	}
	remaining := time.Until(item.expiresAt)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Exists reports whether the key is present and unexpired (implements domain.KV).
func (c *MemoryKV) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	return ok && !item.expired(time.Now()), nil
}

// Expire sets the time-to-live of an existing key (implements domain.KV).
func (c *MemoryKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(time.Now()) {
		return nil
	}
	item.expiresAt = time.Now().Add(ttl)
	return nil
}

// CleanExpired removes all expired items.
func (c *MemoryKV) CleanExpired(ctx context.Context) error {
	now := time.Now()
	for _, s := range c.shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		for key, item := range s.items {
			if item.expired(now) {
				delete(s.items, key)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// StartCleanupWorker starts a background goroutine that periodically removes
// expired items.
func (c *MemoryKV) StartCleanupWorker() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	if c.cleanupRunning {
		return
	}
	c.cleanupRunning = true
	c.cleanupStop = make(chan struct{})

	c.cleanupWg.Add(1)
	go c.cleanupWorker()
}

// StopCleanupWorker stops the background cleanup worker gracefully.
func (c *MemoryKV) StopCleanupWorker() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	if !c.cleanupRunning {
		return
	}
	close(c.cleanupStop)
	c.cleanupWg.Wait()
	c.cleanupRunning = false
}

func (c *MemoryKV) cleanupWorker() {
	defer c.cleanupWg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.cleanupStop:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
		}
	}
}

// Verify that MemoryKV implements domain.KV interface
var _ domain.KV = (*MemoryKV)(nil)
