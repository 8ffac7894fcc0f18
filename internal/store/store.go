// Package store defines interfaces for persisted control-group state and
// cached search results. These abstractions allow swapping implementations
// (Redis, PostgreSQL, in-memory) without changing business logic.
package store

import (
	"context"
	"errors"
	"time"

	"alertscope/internal/domain"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// KeyValueStore persists JSON documents by string key. Keys are scoped by the
// caller (for example per space). All methods must be safe for concurrent use.
type KeyValueStore interface {
	// Get decodes the value stored at key into dest.
	// Returns false, nil if the key does not exist.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value at key as JSON, replacing any previous value.
	Set(ctx context.Context, key string, value any) error

	// Delete removes the value at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// ResultCache caches alert search results by query key hash.
// All methods must be safe for concurrent use.
type ResultCache interface {
	// Get returns the cached result for key.
	// Returns nil, nil if no live entry exists.
	Get(ctx context.Context, key string) (*domain.SearchAlertsResult, error)

	// Set stores a result with the specified TTL.
	Set(ctx context.Context, key string, result *domain.SearchAlertsResult, ttl time.Duration) error

	// Close releases any resources held by the cache.
	Close() error
}
