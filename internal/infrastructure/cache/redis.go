package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storelink/backend/internal/infrastructure/config"
)

// RedisCache implements Cache and IdempotencyStore on Redis. Used in
// distributed deployments where webhook deliveries and usage syncs may land
// on different instances.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg config.RedisConfig, keyPrefix string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = "storelink:"
	}
	return &RedisCache{client: client, keyPrefix: keyPrefix}, nil
}

// NewRedisCacheWithClient wraps an existing client, for tests and for
// sharing a client across components.
func NewRedisCacheWithClient(client *redis.Client, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "storelink:"
	}
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

// Get returns the value for key if present.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return value, true, nil
}

// Set stores a value with a TTL.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate removes a key.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// MarkProcessed records an event id with SETNX so concurrent deliveries of
// the same event race atomically.
func (c *RedisCache) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.keyPrefix+"event:"+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return ok, nil
}

// Forget releases a claimed event id.
func (c *RedisCache) Forget(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, c.keyPrefix+"event:"+eventID).Err(); err != nil {
		return fmt.Errorf("forget event: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var (
	_ Cache            = (*RedisCache)(nil)
	_ IdempotencyStore = (*RedisCache)(nil)
)
