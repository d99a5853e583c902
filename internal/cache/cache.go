// Package cache provides Redis-backed read-through caching for the
// query engine, with per-key-kind TTLs and a nil-client no-op mode.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/log"
)

// Config controls TTLs and whether the cache is active at all.
type Config struct {
	Enabled     bool
	DefaultTTL  time.Duration
	SummaryTTL  time.Duration
	UserDataTTL time.Duration
	KeyPrefix   string
}

// DefaultConfig matches cache.rs's CacheConfig defaults: 5 minute
// default, 30 minute summaries, 10 minute per-user data.
var DefaultConfig = Config{
	Enabled:     true,
	DefaultTTL:  5 * time.Minute,
	SummaryTTL:  30 * time.Minute,
	UserDataTTL: 10 * time.Minute,
	KeyPrefix:   "health_export",
}

// Cache is a thin read-through wrapper over a Redis client. A nil
// client (Enabled false, or Redis unreachable at construction) turns
// every Get into a miss and every Set into a no-op, so callers never
// need to branch on cache availability.
type Cache struct {
	client *redis.Client
	config Config
	logger *log.Logger
}

// Option configures a Cache.
type Option func(*Cache)

func WithConfig(cfg Config) Option {
	return func(c *Cache) { c.config = cfg }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New builds a Cache over client. Pass a nil client to disable caching
// entirely while keeping every call site unchanged.
func New(client *redis.Client, options ...Option) *Cache {
	c := &Cache{client: client, config: DefaultConfig, logger: log.NewLogger()}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type entry[T any] struct {
	Data     T         `json:"data"`
	CachedAt time.Time `json:"cached_at"`
}

// Get looks up key, unmarshaling its cached JSON payload into T. A
// miss, a disabled cache, or a Redis error all report ok=false — per
// the infrastructure-degradation rule, the caller should fall back to
// the authoritative read rather than fail the request.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c == nil || c.client == nil || !c.config.Enabled {
		return zero, false
	}

	raw, err := c.client.Get(ctx, c.namespaced(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnCtx(ctx, "cache get failed", log.String("key", key), log.Error(err))
		}
		return zero, false
	}

	var e entry[T]
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.WarnCtx(ctx, "cache entry corrupt", log.String("key", key), log.Error(err))
		_ = c.client.Del(ctx, c.namespaced(key)).Err()
		return zero, false
	}

	return e.Data, true
}

// Set writes value under key with the given TTL. Errors are logged
// and swallowed: a failed cache write never fails the request.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) {
	if c == nil || c.client == nil || !c.config.Enabled {
		return
	}

	raw, err := json.Marshal(entry[T]{Data: value, CachedAt: time.Now().UTC()})
	if err != nil {
		c.logger.WarnCtx(ctx, "cache marshal failed", log.String("key", key), log.Error(err))
		return
	}

	if err := c.client.Set(ctx, c.namespaced(key), raw, ttl).Err(); err != nil {
		c.logger.WarnCtx(ctx, "cache set failed", log.String("key", key), log.Error(err))
	}
}

// Invalidate deletes one key.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.namespaced(key)).Err(); err != nil {
		c.logger.WarnCtx(ctx, "cache invalidate failed", log.String("key", key), log.Error(err))
	}
}

// InvalidateUser deletes every cached entry for userID across all
// families, scanning by prefix rather than tracking keys explicitly —
// matching cache.rs's namespaced-key convention.
func (c *Cache) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}

	pattern := fmt.Sprintf("%s:*:%s:*", c.config.KeyPrefix, userID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.WarnCtx(ctx, "cache invalidate-user delete failed", log.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WarnCtx(ctx, "cache invalidate-user scan failed", log.Error(err))
	}
}

func (c *Cache) namespaced(key string) string {
	return c.config.KeyPrefix + ":" + key
}

// QueryKey builds the cache key for a paginated per-family query.
func QueryKey(family metric.Family, userID uuid.UUID, paramsHash string) string {
	return fmt.Sprintf("%s_query:%s:%s", family, userID, paramsHash)
}

// SummaryKey builds the cache key for a cross-family summary.
func SummaryKey(userID uuid.UUID, dateRange string) string {
	return fmt.Sprintf("summary:%s:%s", userID, dateRange)
}

// AuthKey builds the cache key for an authentication result, keyed on
// the raw secret's hash rather than a stored hash prefix, to avoid
// prefix-collision false positives.
func AuthKey(secretHash string) string {
	return fmt.Sprintf("auth:%s", secretHash)
}

// GenerateQueryHash deterministically hashes a query's parameters into
// a short cache-key suffix, grounded on cache.rs's generate_query_hash.
func GenerateQueryHash(params map[string]string) string {
	canonical, _ := json.Marshal(params)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}
