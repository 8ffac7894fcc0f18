// Package alertsapi defines the collaborators that fetch alerts, alerts index
// names and alerts field metadata, and the response shaping shared by every
// backend implementation.
package alertsapi

import (
	"context"
	"errors"
	"sort"
	"strings"

	"alertscope/internal/domain"
)

// ErrBackendUnavailable is returned when the backend cannot be reached or
// answers with a server error.
var ErrBackendUnavailable = errors.New("alerts backend unavailable")

// Searcher runs one page of an alerts search.
type Searcher interface {
	SearchAlerts(ctx context.Context, params domain.SearchAlertsParams) (*domain.SearchAlertsResult, error)
}

// IndexNameFetcher resolves the alerts index names for a set of features.
type IndexNameFetcher interface {
	FetchIndexNames(ctx context.Context, featureIDs []domain.FeatureID) ([]string, error)
}

// FieldFetcher loads the field metadata of the alerts indices for a set of features.
type FieldFetcher interface {
	FetchFields(ctx context.Context, featureIDs []domain.FeatureID) (*domain.AlertsFields, error)
}

// Client is implemented by every alerts backend.
type Client interface {
	Searcher
	IndexNameFetcher
	FieldFetcher
	// Name identifies the backend in logs and metrics.
	Name() string
}

// Hit is one search hit in the fields representation.
type Hit struct {
	ID     string           `json:"_id"`
	Index  string           `json:"_index"`
	Fields map[string][]any `json:"fields"`
}

// DefaultFields requests every field, mapped or not.
func DefaultFields() []domain.FieldDescriptor {
	return []domain.FieldDescriptor{{Field: "*", IncludeUnmapped: true}}
}

// SearchBody builds the Elasticsearch search request body for params.
// Params are expected to have defaults applied.
func SearchBody(params domain.SearchAlertsParams) map[string]any {
	fields := params.Fields
	if len(fields) == 0 {
		fields = DefaultFields()
	}
	body := map[string]any{
		"query":            params.Query,
		"fields":           fields,
		"sort":             params.Sort,
		"from":             params.From(),
		"size":             params.PageSize,
		"track_total_hits": true,
		"_source":          false,
	}
	if len(params.RuntimeMappings) > 0 {
		body["runtime_mappings"] = params.RuntimeMappings
	}
	return body
}

// ShapeResult turns search hits into the result consumed by the alerts table:
// alerts keyed by field name, the legacy field/value lists and the
// ECS-nested documents.
func ShapeResult(total int, hits []Hit) *domain.SearchAlertsResult {
	result := &domain.SearchAlertsResult{
		Total:         total,
		Alerts:        make([]domain.Alert, 0, len(hits)),
		OldAlertsData: make([][]domain.FieldValue, 0, len(hits)),
		EcsAlertsData: make([]map[string]any, 0, len(hits)),
	}

	for _, hit := range hits {
		alert := make(domain.Alert, len(hit.Fields)+2)
		for field, values := range hit.Fields {
			alert[field] = values
		}
		alert["_id"] = hit.ID
		alert["_index"] = hit.Index

		result.Alerts = append(result.Alerts, alert)
		result.OldAlertsData = append(result.OldAlertsData, fieldValues(alert))
		result.EcsAlertsData = append(result.EcsAlertsData, ExpandDotted(alert))
	}

	return result
}

// fieldValues lists _id and _index first, then every other field by name.
func fieldValues(alert domain.Alert) []domain.FieldValue {
	out := make([]domain.FieldValue, 0, len(alert))
	out = append(out,
		domain.FieldValue{Field: "_id", Value: alert["_id"]},
		domain.FieldValue{Field: "_index", Value: alert["_index"]},
	)
	for _, field := range sortedKeys(alert) {
		if field == "_id" || field == "_index" {
			continue
		}
		out = append(out, domain.FieldValue{Field: field, Value: alert[field]})
	}
	return out
}

// ExpandDotted expands dotted field names into nested objects. Fields are
// applied in name order, so "a.b" replaces a scalar "a".
func ExpandDotted(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for _, key := range sortedKeys(flat) {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = flat[key]
	}
	return out
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
