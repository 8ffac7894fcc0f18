// Package domain contains the core entities and value objects for alertscope.
// These models describe alert searches, data views, filters and filter controls.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FeatureID identifies the product area an alert or rule belongs to.
type FeatureID string

const (
	FeatureAPM            FeatureID = "apm"
	FeatureLogs           FeatureID = "logs"
	FeatureInfrastructure FeatureID = "infrastructure"
	FeatureObservability  FeatureID = "observability"
	FeatureSLO            FeatureID = "slo"
	FeatureUptime         FeatureID = "uptime"
	FeatureML             FeatureID = "ml"
	FeatureStackAlerts    FeatureID = "stackAlerts"
	// FeatureSIEM is the security-only feature. It cannot be combined with
	// any other feature in a single data view.
	FeatureSIEM FeatureID = "siem"
)

// ErrInvalidFeatureID is returned when a feature identifier is not known.
var ErrInvalidFeatureID = errors.New("invalid feature id")

// alertsIndexPatterns maps each feature to the index pattern holding its alerts.
var alertsIndexPatterns = map[FeatureID]string{
	FeatureAPM:            ".alerts-observability.apm.alerts-*",
	FeatureLogs:           ".alerts-observability.logs.alerts-*",
	FeatureInfrastructure: ".alerts-observability.metrics.alerts-*",
	FeatureObservability:  ".alerts-observability.threshold.alerts-*",
	FeatureSLO:            ".alerts-observability.slo.alerts-*",
	FeatureUptime:         ".alerts-observability.uptime.alerts-*",
	FeatureML:             ".alerts-ml.anomaly-detection.alerts-*",
	FeatureStackAlerts:    ".alerts-stack.alerts-*",
	FeatureSIEM:           ".alerts-security.alerts-*",
}

// IsValid returns true if the feature id is known.
func (f FeatureID) IsValid() bool {
	_, ok := alertsIndexPatterns[f]
	return ok
}

// IsRestricted returns true for the security-only feature.
func (f FeatureID) IsRestricted() bool {
	return f == FeatureSIEM
}

// AlertsIndexPattern returns the alerts index pattern for a feature.
func AlertsIndexPattern(f FeatureID) (string, bool) {
	p, ok := alertsIndexPatterns[f]
	return p, ok
}

// AlertsIndexPatterns returns the index patterns for the given features in input order.
// Duplicates and unknown features are skipped.
func AlertsIndexPatterns(ids []FeatureID) []string {
	seen := make(map[string]struct{}, len(ids))
	patterns := make([]string, 0, len(ids))
	for _, id := range ids {
		p, ok := alertsIndexPatterns[id]
		if !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}
	return patterns
}

// FeatureDomain classifies a set of feature identifiers.
type FeatureDomain int

const (
	// FeatureDomainNone means the set is empty.
	FeatureDomainNone FeatureDomain = iota
	// FeatureDomainRestricted means the set only holds the security feature.
	FeatureDomainRestricted
	// FeatureDomainGeneral means the set only holds non-security features.
	FeatureDomainGeneral
	// FeatureDomainMixed means restricted and general features are combined.
	FeatureDomainMixed
)

// String implements fmt.Stringer.
func (d FeatureDomain) String() string {
	switch d {
	case FeatureDomainRestricted:
		return "restricted"
	case FeatureDomainGeneral:
		return "general"
	case FeatureDomainMixed:
		return "mixed"
	default:
		return "none"
	}
}

// Partition classifies the feature identifiers into a FeatureDomain.
func Partition(ids []FeatureID) FeatureDomain {
	var restricted, general bool
	for _, id := range ids {
		if id.IsRestricted() {
			restricted = true
		} else {
			general = true
		}
	}
	switch {
	case restricted && general:
		return FeatureDomainMixed
	case restricted:
		return FeatureDomainRestricted
	case general:
		return FeatureDomainGeneral
	default:
		return FeatureDomainNone
	}
}

// ParseFeatureIDs parses a comma separated list of feature identifiers.
// An empty string yields an empty, non-nil slice.
func ParseFeatureIDs(csv string) ([]FeatureID, error) {
	ids := []FeatureID{}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id := FeatureID(part)
		if !id.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFeatureID, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ValidateFeatureIDs checks that every feature identifier is known.
func ValidateFeatureIDs(ids []FeatureID) error {
	for _, id := range ids {
		if !id.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidFeatureID, id)
		}
	}
	return nil
}
