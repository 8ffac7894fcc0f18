// Package schema describes the alert documents stored in the alerts indices:
// well-known field names, the index mapping and a deterministic sample set
// used by the in-memory backend and the seed script.
package schema

import (
	"fmt"
	"strings"
	"time"

	"alertscope/internal/domain"
)

// Alert document fields.
const (
	FieldTimestamp      = "@timestamp"
	FieldAlertUUID      = "kibana.alert.uuid"
	FieldStatus         = "kibana.alert.status"
	FieldWorkflowStatus = "kibana.alert.workflow_status"
	FieldRuleName       = "kibana.alert.rule.name"
	FieldRuleUUID       = "kibana.alert.rule.uuid"
	FieldRuleConsumer   = "kibana.alert.rule.consumer"
	FieldRuleProducer   = "kibana.alert.rule.producer"
	FieldSeverity       = "kibana.alert.severity"
	FieldRiskScore      = "kibana.alert.risk_score"
	FieldReason         = "kibana.alert.reason"
	FieldGroupValue     = "kibana.alert.group.value"
	FieldStart          = "kibana.alert.start"
	FieldSpaceIDs       = "kibana.space_ids"
	FieldHostName       = "host.name"
	FieldUserName       = "user.name"
	FieldServiceName    = "service.name"
	FieldTags           = "tags"
)

// FieldTypes holds the Elasticsearch type of every alert document field.
var FieldTypes = map[string]string{
	FieldTimestamp:      "date",
	FieldAlertUUID:      "keyword",
	FieldStatus:         "keyword",
	FieldWorkflowStatus: "keyword",
	FieldRuleName:       "keyword",
	FieldRuleUUID:       "keyword",
	FieldRuleConsumer:   "keyword",
	FieldRuleProducer:   "keyword",
	FieldSeverity:       "keyword",
	FieldRiskScore:      "float",
	FieldReason:         "match_only_text",
	FieldGroupValue:     "keyword",
	FieldStart:          "date",
	FieldSpaceIDs:       "keyword",
	FieldHostName:       "keyword",
	FieldUserName:       "keyword",
	FieldServiceName:    "keyword",
	FieldTags:           "keyword",
}

// IndexMapping returns the mapping body used to create an alerts index.
func IndexMapping() map[string]any {
	props := make(map[string]any, len(FieldTypes))
	for field, typ := range FieldTypes {
		props[field] = map[string]any{"type": typ}
	}
	return map[string]any{
		"mappings": map[string]any{
			"dynamic":    false,
			"properties": props,
		},
	}
}

// ConcreteIndex returns the default-space index for a feature's alerts,
// e.g. ".alerts-security.alerts-default".
func ConcreteIndex(f domain.FeatureID) (string, bool) {
	pattern, ok := domain.AlertsIndexPattern(f)
	if !ok {
		return "", false
	}
	return strings.TrimSuffix(pattern, "*") + "default", true
}

// Document is one alert document ready to be indexed.
type Document struct {
	ID      string
	Feature domain.FeatureID
	Index   string
	Fields  map[string]any
}

var (
	sampleFeatures = []domain.FeatureID{
		domain.FeatureAPM,
		domain.FeatureLogs,
		domain.FeatureInfrastructure,
		domain.FeatureSIEM,
		domain.FeatureStackAlerts,
	}
	sampleStatuses   = []string{"active", "active", "recovered", "untracked"}
	sampleSeverities = []string{"low", "medium", "high", "critical"}
	sampleHosts      = []string{"web-01", "web-02", "db-01", "cache-01", "worker-01"}
	sampleUsers      = []string{"alice", "bob", "root"}
	sampleRules      = []string{"High CPU", "Error rate", "Log threshold", "Suspicious login", "Disk usage", "Latency"}
)

// SampleAlerts returns n deterministic alerts spread over features, statuses
// and hosts, with timestamps one minute apart going back from now.
func SampleAlerts(now time.Time, n int) []Document {
	docs := make([]Document, 0, n)
	for i := 0; i < n; i++ {
		feature := sampleFeatures[i%len(sampleFeatures)]
		index, _ := ConcreteIndex(feature)
		ts := now.Add(-time.Duration(i) * time.Minute).UTC().Format(time.RFC3339)
		rule := sampleRules[i%len(sampleRules)]
		host := sampleHosts[i%len(sampleHosts)]
		id := fmt.Sprintf("alert-%03d", i+1)

		fields := map[string]any{
			FieldTimestamp:      ts,
			FieldAlertUUID:      id,
			FieldStatus:         sampleStatuses[i%len(sampleStatuses)],
			FieldWorkflowStatus: "open",
			FieldRuleName:       rule,
			FieldRuleUUID:       fmt.Sprintf("rule-%d", i%len(sampleRules)+1),
			FieldRuleConsumer:   string(feature),
			FieldRuleProducer:   string(feature),
			FieldSeverity:       sampleSeverities[i%len(sampleSeverities)],
			FieldRiskScore:      float64((i * 17) % 100),
			FieldReason:         fmt.Sprintf("%s triggered on %s", rule, host),
			FieldGroupValue:     host,
			FieldStart:          ts,
			FieldSpaceIDs:       []any{"default"},
			FieldHostName:       host,
			FieldUserName:       sampleUsers[i%len(sampleUsers)],
			FieldTags:           []any{string(feature), "sample"},
		}
		if feature == domain.FeatureAPM {
			fields[FieldServiceName] = "checkout"
		}

		docs = append(docs, Document{ID: id, Feature: feature, Index: index, Fields: fields})
	}
	return docs
}
