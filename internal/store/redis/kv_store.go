// Package redis provides Redis-based implementations of the store interfaces.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"alertscope/internal/config"
	"alertscope/internal/metrics"
)

// Key prefixes for different data types in Redis.
const (
	prefixKeyValue = "kv:"
	prefixResult   = "search:"
)

// NewClient creates a Redis client and verifies the connection.
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// KeyValueStore implements store.KeyValueStore using Redis strings.
type KeyValueStore struct {
	client *redis.Client
	prefix string
}

// NewKeyValueStore creates a new Redis-backed key-value store.
// keyPrefix namespaces every key, e.g. per deployment.
func NewKeyValueStore(client *redis.Client, keyPrefix string) *KeyValueStore {
	return &KeyValueStore{client: client, prefix: keyPrefix + prefixKeyValue}
}

// Get decodes the value stored at key into dest.
func (s *KeyValueStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	start := time.Now()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	record("read", start, err)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %q: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value for %q: %w", key, err)
	}

	return true, nil
}

// Set stores value at key as JSON. Values do not expire.
func (s *KeyValueStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %q: %w", key, err)
	}

	start := time.Now()
	err = s.client.Set(ctx, s.prefix+key, data, 0).Err()
	record("write", start, err)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}

	return nil
}

// Delete removes the value at key.
func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.client.Del(ctx, s.prefix+key).Err()
	record("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}

	return nil
}

// Close closes the Redis client connection.
func (s *KeyValueStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// record tracks latency and outcome of a Redis operation. A missing key is a success.
func record(operation string, start time.Time, err error) {
	metrics.StorageOperationLatency.WithLabelValues("redis", operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil && !errors.Is(err, redis.Nil) {
		status = "failure"
	}
	metrics.StorageOperationsTotal.WithLabelValues("redis", operation, status).Inc()
}
