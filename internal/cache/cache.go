package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientSource hands out the current Redis client.
type ClientSource interface {
	Get() redis.UniversalClient
}

// Cache is a namespaced key space in Redis.
type Cache struct {
	source    ClientSource
	Namespace string
}

func NewCache(namespace string, source ClientSource) *Cache {
	return &Cache{
		Namespace: namespace,
		source:    source,
	}
}

func (c *Cache) key(k string) string {
	return c.Namespace + ":" + k
}

// Seen marks key for ttl and reports whether it was already marked.
func (c *Cache) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := c.source.Get().SetNX(ctx, c.key(key), 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Remove forgets key, so a later Seen reports it as new.
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.source.Get().Del(ctx, c.key(key)).Err()
}
