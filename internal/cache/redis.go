package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// or rediss:// URL and pings the server.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisCache stores JSON-encoded values under a key prefix with a fixed TTL.
// A non-positive TTL disables writes, so no key is ever stored without
// an expiry.
type RedisCache[T any] struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. Keys are stored as prefix+key.
func NewRedisCache[T any](rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	val, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "Redis cache read failed", "key", key, "error", err)
		}
		return zero, false
	}

	var data T
	if err := json.Unmarshal(val, &data); err != nil {
		slog.WarnContext(ctx, "Redis cache entry undecodable", "key", key, "error", err)
		return zero, false
	}
	return data, true
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, data T) {
	if c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		slog.WarnContext(ctx, "Redis cache entry unencodable", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, payload, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Redis cache write failed", "key", key, "error", err)
	}
}

func (c *RedisCache[T]) Delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		slog.WarnContext(ctx, "Redis cache delete failed", "key", key, "error", err)
	}
}

// Generations tracks a per-user counter that is bumped on every write. Cache
// keys embed the current value, so a bump makes older entries unreachable.
type Generations interface {
	Current(ctx context.Context, userID string) int64
	Bump(ctx context.Context, userID string)
}

// MemoryGenerations keeps counters in process memory.
type MemoryGenerations struct {
	mu   sync.Mutex
	gens map[string]int64
}

func NewMemoryGenerations() *MemoryGenerations {
	return &MemoryGenerations{gens: make(map[string]int64)}
}

func (g *MemoryGenerations) Current(_ context.Context, userID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[userID]
}

func (g *MemoryGenerations) Bump(_ context.Context, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[userID]++
}

// RedisGenerations keeps counters in Redis so every API instance sees the
// same invalidation.
type RedisGenerations struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisGenerations(rdb redis.Cmdable, prefix string) *RedisGenerations {
	return &RedisGenerations{rdb: rdb, prefix: prefix}
}

// Current returns -1 when Redis cannot be read, which never matches a stored
// key generation.
func (g *RedisGenerations) Current(ctx context.Context, userID string) int64 {
	n, err := g.rdb.Get(ctx, g.prefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		slog.WarnContext(ctx, "Redis generation read failed", "user_id", userID, "error", err)
		return -1
	}
	return n
}

func (g *RedisGenerations) Bump(ctx context.Context, userID string) {
	if err := g.rdb.Incr(ctx, g.prefix+userID).Err(); err != nil {
		slog.WarnContext(ctx, "Redis generation bump failed", "user_id", userID, "error", err)
	}
}
