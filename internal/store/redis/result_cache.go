package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"alertscope/internal/domain"
)

// ResultCache implements store.ResultCache using Redis keys with a TTL.
type ResultCache struct {
	client *redis.Client
	prefix string
}

// NewResultCache creates a new Redis-backed search result cache.
func NewResultCache(client *redis.Client, keyPrefix string) *ResultCache {
	return &ResultCache{client: client, prefix: keyPrefix + prefixResult}
}

// Get returns the cached result for key, or nil if absent.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.SearchAlertsResult, error) {
	start := time.Now()

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	record("read", start, err)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached result: %w", err)
	}

	var result domain.SearchAlertsResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}

	return &result, nil
}

// Set stores a result with the specified TTL.
func (c *ResultCache) Set(ctx context.Context, key string, result *domain.SearchAlertsResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	start := time.Now()
	err = c.client.Set(ctx, c.prefix+key, data, ttl).Err()
	record("write", start, err)
	if err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}

	return nil
}

// Close is a no-op. The client is shared with the key-value store, which closes it.
func (c *ResultCache) Close() error {
	return nil
}
