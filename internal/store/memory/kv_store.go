// Package memory provides in-memory implementations of store interfaces.
// These are useful for testing and development without external dependencies.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"alertscope/internal/metrics"
	"alertscope/internal/store"
)

// KeyValueStore is an in-memory implementation of the store.KeyValueStore interface.
// Values are kept as encoded JSON so callers never share memory with the store.
type KeyValueStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewKeyValueStore creates a new in-memory key-value store.
func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{
		values: make(map[string][]byte),
	}
}

// Get decodes the value stored at key into dest.
func (s *KeyValueStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	start := time.Now()
	defer observe("read", start)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, store.ErrStoreClosed
	}

	data, exists := s.values[key]
	if !exists {
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value for %q: %w", key, err)
	}
	return true, nil
}

// Set stores value at key as JSON.
func (s *KeyValueStore) Set(ctx context.Context, key string, value any) error {
	start := time.Now()
	defer observe("write", start)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	s.values[key] = data
	return nil
}

// Delete removes the value at key.
func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	delete(s.values, key)
	return nil
}

// Close marks the store closed. Later operations fail with store.ErrStoreClosed.
func (s *KeyValueStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// --- Test Helpers ---

// Len returns the number of stored keys.
func (s *KeyValueStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}

// Clear removes all data from the store. Useful for test cleanup.
func (s *KeyValueStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string][]byte)
}

func observe(operation string, start time.Time) {
	metrics.StorageOperationLatency.WithLabelValues("memory", operation).Observe(time.Since(start).Seconds())
}
