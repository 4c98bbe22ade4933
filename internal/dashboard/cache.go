package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps recently built summaries in Redis for a short TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A zero ttl disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

func summaryKey(franchiseID string) string {
	return strings.Join([]string{"dashboard", "summary", franchiseID}, ":")
}

// FetchJSON loads a cached value or populates it using the loader. Cache
// failures fall back to the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("dashboard: loader required")
	}
	if c != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate drops the cached summary of a franchise.
func (c *Cache) Invalidate(ctx context.Context, franchiseID string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(franchiseID)).Err()
}
