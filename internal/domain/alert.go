package domain

import (
	"errors"
)

// ErrInvalidAlertStatus is returned for an unknown status filter.
var ErrInvalidAlertStatus = errors.New("status must be 'all', 'active', 'recovered' or 'untracked'")

// AlertStatus is the status filter applied by the search bar.
type AlertStatus string

const (
	// AlertStatusAll disables status filtering.
	AlertStatusAll AlertStatus = "all"
	// AlertStatusActive matches alerts whose condition is still met.
	AlertStatusActive AlertStatus = "active"
	// AlertStatusRecovered matches alerts that recovered.
	AlertStatusRecovered AlertStatus = "recovered"
	// AlertStatusUntracked matches alerts no longer tracked by their rule.
	AlertStatusUntracked AlertStatus = "untracked"
)

// IsValid returns true if the status is known.
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusAll, AlertStatusActive, AlertStatusRecovered, AlertStatusUntracked:
		return true
	}
	return false
}

// Alert is one alert document flattened to field name -> values.
// The document id and index are stored under "_id" and "_index" as strings.
type Alert map[string]any

// ID returns the alert document id.
func (a Alert) ID() string {
	id, _ := a["_id"].(string)
	return id
}

// Index returns the index the alert was read from.
func (a Alert) Index() string {
	idx, _ := a["_index"].(string)
	return idx
}

// FieldValue is one field of an alert in the legacy table representation.
type FieldValue struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// SearchAlertsResult is the outcome of an alerts search.
type SearchAlertsResult struct {
	// Total is the total number of matching alerts. It is -1 before the first search resolves.
	Total int `json:"total"`

	// Alerts holds the current page of alerts.
	Alerts []Alert `json:"alerts"`

	// OldAlertsData is the field/value list representation of Alerts.
	OldAlertsData [][]FieldValue `json:"oldAlertsData"`

	// EcsAlertsData is Alerts with dotted field names expanded into nested objects.
	EcsAlertsData []map[string]any `json:"ecsAlertsData"`
}

// PlaceholderResult returns the result shown before any search has resolved.
func PlaceholderResult() *SearchAlertsResult {
	return &SearchAlertsResult{
		Total:         -1,
		Alerts:        []Alert{},
		OldAlertsData: [][]FieldValue{},
		EcsAlertsData: []map[string]any{},
	}
}

// IsPlaceholder returns true if this is the initial placeholder result.
func (r *SearchAlertsResult) IsPlaceholder() bool {
	return r.Total == -1
}

// Clone returns a copy whose slices can be modified without touching r.
// Alert documents themselves are shared.
func (r *SearchAlertsResult) Clone() *SearchAlertsResult {
	if r == nil {
		return nil
	}
	return &SearchAlertsResult{
		Total:         r.Total,
		Alerts:        append([]Alert{}, r.Alerts...),
		OldAlertsData: append([][]FieldValue{}, r.OldAlertsData...),
		EcsAlertsData: append([]map[string]any{}, r.EcsAlertsData...),
	}
}
