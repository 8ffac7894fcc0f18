package domain

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name string
		ids  []FeatureID
		want FeatureDomain
	}{
		{"empty", nil, FeatureDomainNone},
		{"siem only", []FeatureID{FeatureSIEM}, FeatureDomainRestricted},
		{"general only", []FeatureID{FeatureLogs, FeatureAPM}, FeatureDomainGeneral},
		{"mixed", []FeatureID{FeatureLogs, FeatureSIEM}, FeatureDomainMixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Partition(tt.ids); got != tt.want {
				t.Errorf("Partition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFeatureIDs(t *testing.T) {
	ids, err := ParseFeatureIDs(" apm, logs ,,")
	if err != nil {
		t.Fatalf("ParseFeatureIDs() error = %v", err)
	}
	if !reflect.DeepEqual(ids, []FeatureID{FeatureAPM, FeatureLogs}) {
		t.Errorf("ids = %v, want [apm logs]", ids)
	}

	ids, err = ParseFeatureIDs("")
	if err != nil || ids == nil || len(ids) != 0 {
		t.Errorf("ParseFeatureIDs(\"\") = %v, %v, want empty non-nil slice", ids, err)
	}

	if _, err := ParseFeatureIDs("apm,bogus"); !errors.Is(err, ErrInvalidFeatureID) {
		t.Errorf("error = %v, want ErrInvalidFeatureID", err)
	}
}

func TestAlertsIndexPatterns(t *testing.T) {
	got := AlertsIndexPatterns([]FeatureID{FeatureLogs, "bogus", FeatureLogs, FeatureSIEM})
	want := []string{".alerts-observability.logs.alerts-*", ".alerts-security.alerts-*"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AlertsIndexPatterns() = %v, want %v", got, want)
	}
}

func TestSearchAlertsParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  SearchAlertsParams
		wantErr error
	}{
		{"valid", SearchAlertsParams{FeatureIDs: []FeatureID{FeatureLogs}}, nil},
		{"unknown feature", SearchAlertsParams{FeatureIDs: []FeatureID{"bogus"}}, ErrInvalidFeatureID},
		{"negative index", SearchAlertsParams{PageIndex: -1}, ErrNegativePageIndex},
		{"negative size", SearchAlertsParams{PageSize: -5}, ErrNegativePageSize},
		{"last page of window", SearchAlertsParams{PageIndex: 99, PageSize: 100}, nil},
		{"past window", SearchAlertsParams{PageIndex: 100, PageSize: 100}, ErrResultWindow},
		{"default size past window", SearchAlertsParams{PageIndex: MaxResultWindow / DefaultPageSize}, ErrResultWindow},
		{"oversized page", SearchAlertsParams{PageSize: MaxResultWindow + 1}, ErrResultWindow},
		{"overflowing index", SearchAlertsParams{PageIndex: math.MaxInt / 2, PageSize: 4}, ErrResultWindow},
		{"bad sort", SearchAlertsParams{Sort: []SortClause{{Field: "x", Order: "up"}}}, ErrInvalidSortOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSearchAlertsParams_WithDefaults(t *testing.T) {
	p := SearchAlertsParams{FeatureIDs: []FeatureID{FeatureLogs}, PageIndex: 2}.WithDefaults()

	if !reflect.DeepEqual(p.Query, map[string]any{"bool": map[string]any{}}) {
		t.Errorf("Query = %v, want empty bool", p.Query)
	}
	if len(p.Sort) != 1 || p.Sort[0] != (SortClause{Field: TimestampField, Order: SortDesc}) {
		t.Errorf("Sort = %v, want @timestamp desc", p.Sort)
	}
	if p.PageSize != DefaultPageSize {
		t.Errorf("PageSize = %v, want %v", p.PageSize, DefaultPageSize)
	}
	if p.From() != 2*DefaultPageSize {
		t.Errorf("From() = %v, want %v", p.From(), 2*DefaultPageSize)
	}
}

func TestSortClause_JSON(t *testing.T) {
	var clauses []SortClause
	data := `[{"@timestamp":"desc"},{"kibana.alert.severity":{"order":"asc"}}]`
	if err := json.Unmarshal([]byte(data), &clauses); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := []SortClause{
		{Field: "@timestamp", Order: SortDesc},
		{Field: "kibana.alert.severity", Order: SortAsc},
	}
	if !reflect.DeepEqual(clauses, want) {
		t.Errorf("clauses = %v, want %v", clauses, want)
	}

	out, err := json.Marshal(clauses[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `{"@timestamp":"desc"}` {
		t.Errorf("Marshal() = %s", out)
	}

	var bad SortClause
	if err := json.Unmarshal([]byte(`{"a":"asc","b":"desc"}`), &bad); err == nil {
		t.Error("Unmarshal() of two fields: error = nil")
	}
}

func TestSearchAlertsResult_Placeholder(t *testing.T) {
	r := PlaceholderResult()
	if !r.IsPlaceholder() || r.Alerts == nil || r.OldAlertsData == nil || r.EcsAlertsData == nil {
		t.Errorf("PlaceholderResult() = %+v, want total -1 with empty lists", r)
	}

	clone := r.Clone()
	clone.Alerts = append(clone.Alerts, Alert{"_id": "a"})
	if len(r.Alerts) != 0 {
		t.Error("Clone() shares the alerts slice")
	}
}

func TestControlGroupInput(t *testing.T) {
	in := &ControlGroupInput{
		Panels: PanelsFromControls([]FilterItem{
			{FieldName: "kibana.alert.status", SelectedOptions: []string{"active"}},
			{FieldName: "host.name"},
		}),
		Filters: []Filter{{Query: map[string]any{"match_all": map[string]any{}}}},
		Query:   &Query{Language: QueryLanguageKuery, Query: "a"},
	}

	if ids := in.PanelIDs(); !reflect.DeepEqual(ids, []string{"0", "1"}) {
		t.Errorf("PanelIDs() = %v, want [0 1]", ids)
	}
	if id, ok := in.FindControl("host.name"); !ok || id != "1" {
		t.Errorf("FindControl() = %v, %v, want 1, true", id, ok)
	}
	if _, ok := in.FindControl("user.name"); ok {
		t.Error("FindControl(user.name) found a panel")
	}

	clone := in.Clone()
	clone.Panels["0"].Control.SelectedOptions[0] = "recovered"
	clone.Filters[0].Query["other"] = true
	clone.Query.Query = "b"

	if in.Panels["0"].Control.SelectedOptions[0] != "active" {
		t.Error("Clone() shares selected options")
	}
	if _, ok := in.Filters[0].Query["other"]; ok {
		t.Error("Clone() shares filter queries")
	}
	if in.Query.Query != "a" {
		t.Error("Clone() shares the query")
	}
}

func TestControlGroupOutput_AllLoaded(t *testing.T) {
	if !(ControlGroupOutput{}).AllLoaded() {
		t.Error("empty output should count as loaded")
	}
	out := ControlGroupOutput{EmbeddableLoaded: map[string]bool{"0": true, "1": false}}
	if out.AllLoaded() {
		t.Error("AllLoaded() = true with one control loading")
	}
}

func TestCloneFilters_Nil(t *testing.T) {
	if got := CloneFilters(nil); got == nil || len(got) != 0 {
		t.Errorf("CloneFilters(nil) = %v, want empty non-nil slice", got)
	}
}
