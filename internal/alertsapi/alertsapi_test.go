package alertsapi

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"alertscope/internal/domain"
)

func TestShapeResult(t *testing.T) {
	hits := []Hit{
		{
			ID:    "a-1",
			Index: ".alerts-stack.alerts-default",
			Fields: map[string][]any{
				"kibana.alert.status": {"active"},
				"host.name":           {"web-01"},
			},
		},
	}

	got := ShapeResult(42, hits)

	if got.Total != 42 {
		t.Errorf("Total = %v, want 42", got.Total)
	}
	if len(got.Alerts) != 1 {
		t.Fatalf("len(Alerts) = %v, want 1", len(got.Alerts))
	}
	if got.Alerts[0].ID() != "a-1" {
		t.Errorf("ID() = %v, want a-1", got.Alerts[0].ID())
	}
	if got.Alerts[0].Index() != ".alerts-stack.alerts-default" {
		t.Errorf("Index() = %v, want .alerts-stack.alerts-default", got.Alerts[0].Index())
	}

	wantOld := []domain.FieldValue{
		{Field: "_id", Value: "a-1"},
		{Field: "_index", Value: ".alerts-stack.alerts-default"},
		{Field: "host.name", Value: []any{"web-01"}},
		{Field: "kibana.alert.status", Value: []any{"active"}},
	}
	if diff := cmp.Diff(wantOld, got.OldAlertsData[0]); diff != "" {
		t.Errorf("OldAlertsData mismatch (-want +got):\n%s", diff)
	}

	wantEcs := map[string]any{
		"_id":    "a-1",
		"_index": ".alerts-stack.alerts-default",
		"host":   map[string]any{"name": []any{"web-01"}},
		"kibana": map[string]any{"alert": map[string]any{"status": []any{"active"}}},
	}
	if diff := cmp.Diff(wantEcs, got.EcsAlertsData[0]); diff != "" {
		t.Errorf("EcsAlertsData mismatch (-want +got):\n%s", diff)
	}
}

func TestShapeResult_NoHits(t *testing.T) {
	got := ShapeResult(0, nil)

	if got.Alerts == nil || got.OldAlertsData == nil || got.EcsAlertsData == nil {
		t.Error("empty result slices should be non-nil")
	}
	if got.IsPlaceholder() {
		t.Error("a resolved empty result is not the placeholder")
	}
}

func TestExpandDotted_ScalarReplacedByObject(t *testing.T) {
	got := ExpandDotted(map[string]any{"a": 1, "a.b": 2})
	want := map[string]any{"a": map[string]any{"b": 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandDotted mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchBody(t *testing.T) {
	params := domain.SearchAlertsParams{
		FeatureIDs: []domain.FeatureID{domain.FeatureLogs},
		PageIndex:  2,
	}.WithDefaults()

	body := SearchBody(params)

	if body["from"] != 20 {
		t.Errorf("from = %v, want 20", body["from"])
	}
	if body["size"] != 10 {
		t.Errorf("size = %v, want 10", body["size"])
	}
	if _, ok := body["runtime_mappings"]; ok {
		t.Error("runtime_mappings should be omitted when empty")
	}
	fields, _ := body["fields"].([]domain.FieldDescriptor)
	if len(fields) != 1 || fields[0].Field != "*" {
		t.Errorf("fields = %v, want [*]", body["fields"])
	}
}

func TestKibanaType(t *testing.T) {
	tests := []struct {
		esTypes []string
		want    string
	}{
		{[]string{"keyword"}, "string"},
		{[]string{"long", "integer"}, "number"},
		{[]string{"keyword", "long"}, "conflict"},
		{[]string{"date_nanos"}, "date"},
		{[]string{"histogram"}, "unknown"},
		{nil, "unknown"},
	}

	for _, tt := range tests {
		if got := KibanaType(tt.esTypes); got != tt.want {
			t.Errorf("KibanaType(%v) = %v, want %v", tt.esTypes, got, tt.want)
		}
	}
}

func TestBuildBrowserFields(t *testing.T) {
	fields := []domain.FieldSpec{
		{Name: "@timestamp", Type: "date"},
		{Name: "host.name", Type: "string"},
		{Name: "host.ip", Type: "ip"},
	}

	got := BuildBrowserFields(fields, []string{"idx"})

	if len(got["host"].Fields) != 2 {
		t.Errorf("len(host fields) = %v, want 2", len(got["host"].Fields))
	}
	if got["base"].Fields["@timestamp"].Category != "base" {
		t.Errorf("@timestamp category = %v, want base", got["base"].Fields["@timestamp"].Category)
	}
}
