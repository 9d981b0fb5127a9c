// Package rediscache implements imagecurate.Cache on Redis.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long cached fingerprints live.
const DefaultTTL = 7 * 24 * time.Hour

const keyNamespace = "imagecurate"

// Cache stores JSON values in Redis. Errors degrade to cache misses.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ imagecurate.Cache = (*Cache)(nil)

// Options configures a Cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // zero = DefaultTTL
	Logger   *slog.Logger  // nil = slog.Default()
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewWithClient(rdb, opts.TTL, opts.Logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Key builds a namespaced key from prefix and a digest of value.
func (c *Cache) Key(prefix, value string) string {
	sum := sha256.Sum256([]byte(value))
	return keyNamespace + ":" + prefix + ":" + hex.EncodeToString(sum[:16])
}

// Get decodes the cached value into dest. It reports false on a miss or any error.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("rediscache: get failed", slog.String("key", key), slog.Any("error", err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug("rediscache: decode failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

// Set stores value as JSON with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug("rediscache: encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("rediscache: set failed", slog.String("key", key), slog.Any("error", err))
	}
}
