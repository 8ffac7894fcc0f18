package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"alertscope/internal/metrics"
)

// KeyValueStore implements store.KeyValueStore on the key_values table.
type KeyValueStore struct {
	db *DB
}

// NewKeyValueStore creates a new PostgreSQL-backed key-value store.
func NewKeyValueStore(db *DB) *KeyValueStore {
	return &KeyValueStore{db: db}
}

// Get decodes the value stored at key into dest.
func (s *KeyValueStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	query := `SELECT value FROM key_values WHERE key = $1`

	start := time.Now()
	var data []byte
	err := s.db.pool.QueryRow(ctx, query, key).Scan(&data)
	record("read", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %q: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value for %q: %w", key, err)
	}

	return true, nil
}

// Set upserts value at key as JSONB.
func (s *KeyValueStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %q: %w", key, err)
	}

	query := `
		INSERT INTO key_values (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err = s.db.pool.Exec(ctx, query, key, data, time.Now().UTC())
	record("write", start, err)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}

	return nil
}

// Delete removes the value at key.
func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM key_values WHERE key = $1`

	start := time.Now()
	_, err := s.db.pool.Exec(ctx, query, key)
	record("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}

	return nil
}

// Close closes the underlying pool.
func (s *KeyValueStore) Close() error {
	s.db.Close()
	return nil
}

func record(operation string, start time.Time, err error) {
	metrics.StorageOperationLatency.WithLabelValues("postgres", operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		status = "failure"
	}
	metrics.StorageOperationsTotal.WithLabelValues("postgres", operation, status).Inc()
}
