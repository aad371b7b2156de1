package rehost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 30 * 24 * time.Hour

// RedisCache stores source→rehosted URL mappings in Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{
		client: client,
		prefix: "rehost:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(source string) string {
	return c.prefix + source
}

// Get returns the rehosted URL for source, if cached.
func (c *RedisCache) Get(ctx context.Context, source string) (string, bool, error) {
	rehosted, err := c.client.Get(ctx, c.key(source)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get rehosted url: %w", err)
	}
	return rehosted, true, nil
}

// Set caches the rehosted URL for source.
func (c *RedisCache) Set(ctx context.Context, source, rehosted string) error {
	if err := c.client.Set(ctx, c.key(source), rehosted, c.ttl).Err(); err != nil {
		return fmt.Errorf("set rehosted url: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
