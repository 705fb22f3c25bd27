package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// Cache is a namespaced byte cache. Lookups that fail for any reason other
// than a miss are reported as errors so callers can fall through to the
// source of truth.
type Cache struct {
	client *redis.Client
	prefix string
}

func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// Get returns (nil, false, nil) on a miss.
func (c *Cache) Get(ctx context.Context, k string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", k, err)
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, k string, val []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(k), val, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", k, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, k string) error {
	if err := c.client.Del(ctx, c.key(k)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", k, err)
	}
	return nil
}
