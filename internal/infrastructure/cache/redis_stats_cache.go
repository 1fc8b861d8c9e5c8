package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tripdesk/backend/internal/application/billing"
)

// RedisStatsCache implements StatsCache using Redis. Suitable for
// distributed deployments where multiple instances share the cached
// dashboard figures.
type RedisStatsCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisStatsCache creates a new Redis-backed stats cache
func NewRedisStatsCache(cfg RedisConfig) (*RedisStatsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStatsCache{
		client:    client,
		keyPrefix: "billing:stats:",
	}, nil
}

// NewRedisStatsCacheWithClient creates a cache with an existing Redis client.
// Useful for testing or when sharing a client across components.
func NewRedisStatsCacheWithClient(client *redis.Client, keyPrefix string) *RedisStatsCache {
	if keyPrefix == "" {
		keyPrefix = "billing:stats:"
	}
	return &RedisStatsCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get loads the cached value into dest, returning true on a hit
func (c *RedisStatsCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read stats cache: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached stats: %w", err)
	}
	return true, nil
}

// Set stores the value with a TTL
func (c *RedisStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode stats for cache: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write stats cache: %w", err)
	}
	return nil
}

// Delete removes a key
func (c *RedisStatsCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete stats cache key: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client
func (c *RedisStatsCache) Close() error {
	return c.client.Close()
}

// Ensure RedisStatsCache implements StatsCache
var _ billing.StatsCache = (*RedisStatsCache)(nil)
