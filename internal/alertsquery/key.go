// Package alertsquery coordinates alert searches: it derives deterministic
// query keys from search params, deduplicates concurrent fetches of the same
// key, caches results and tracks the current result of a changing query.
package alertsquery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"alertscope/internal/domain"
)

const (
	// KeyNamespace is the first element of every alerts query key.
	KeyNamespace = "alerts"
	// KeyFetcher identifies the search function in a query key.
	KeyFetcher = "searchAlerts"
)

// QueryKey identifies an alerts search: namespace, fetch function and the
// serialized params. It is comparable and can be used as a map key.
type QueryKey [3]string

// Key derives the query key for params after applying the search defaults.
// Serialization follows struct field order and slice order; map keys are
// sorted, so identical params always produce identical keys.
func Key(params domain.SearchAlertsParams) (QueryKey, error) {
	data, err := json.Marshal(params.WithDefaults())
	if err != nil {
		return QueryKey{}, fmt.Errorf("failed to serialize search params: %w", err)
	}
	return QueryKey{KeyNamespace, KeyFetcher, string(data)}, nil
}

// Params returns the serialized params part of the key.
func (k QueryKey) Params() string {
	return k[2]
}

// String renders the key as a JSON array.
func (k QueryKey) String() string {
	data, _ := json.Marshal(k[:])
	return string(data)
}

// Hash returns a compact, stable identifier for the key, suitable for
// external caches.
func (k QueryKey) Hash() string {
	hash := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(hash[:16])
}
