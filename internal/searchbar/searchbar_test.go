package searchbar

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"alertscope/internal/domain"
	"alertscope/internal/kql"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func hostFilter(value string) domain.Filter {
	return domain.Filter{
		Meta:  domain.FilterMeta{Key: "host.name", Type: domain.FilterTypePhrase},
		Query: map[string]any{"match_phrase": map[string]any{"host.name": value}},
	}
}

func TestDefaultState(t *testing.T) {
	s := DefaultState()

	if s.RangeFrom != "now-24h" || s.RangeTo != "now" {
		t.Errorf("range = %v..%v, want now-24h..now", s.RangeFrom, s.RangeTo)
	}
	if s.Kuery != "" || s.Status != domain.AlertStatusAll {
		t.Errorf("kuery = %q status = %v, want empty and all", s.Kuery, s.Status)
	}
	if s.Filters == nil || s.ControlFilters == nil {
		t.Error("filters should be empty, not nil")
	}
}

func TestTransitions_ReturnNewSnapshots(t *testing.T) {
	initial := DefaultState()
	filters := []domain.Filter{hostFilter("a")}

	next := initial.
		SetRangeFrom("now-7d").
		SetRangeTo("now-1h").
		SetKuery("host.name: a").
		SetStatus(domain.AlertStatusActive).
		SetFilters(filters).
		SetControlFilters(filters).
		SetSavedQueryID("saved-1")

	if diff := cmp.Diff(DefaultState(), initial); diff != "" {
		t.Errorf("initial state changed (-want +got):\n%s", diff)
	}
	want := State{
		RangeFrom:      "now-7d",
		RangeTo:        "now-1h",
		Kuery:          "host.name: a",
		Status:         domain.AlertStatusActive,
		Filters:        filters,
		ControlFilters: filters,
		SavedQueryID:   "saved-1",
	}
	if diff := cmp.Diff(want, next); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	filters[0] = hostFilter("b")
	if next.Filters[0].Query["match_phrase"].(map[string]any)["host.name"] != "a" {
		t.Error("state shares its filters with the caller")
	}
}

func TestPatch(t *testing.T) {
	kuery := "service.name: api"
	status := domain.AlertStatusRecovered
	p := Patch{Kuery: &kuery, Status: &status}

	if err := p.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	got := p.Apply(DefaultState())
	if got.Kuery != kuery || got.Status != status || got.RangeFrom != DefaultRangeFrom {
		t.Errorf("Apply() = %+v", got)
	}

	bad := domain.AlertStatus("flapping")
	if err := (Patch{Status: &bad}).Validate(); !errors.Is(err, domain.ErrInvalidAlertStatus) {
		t.Errorf("Validate error = %v, want ErrInvalidAlertStatus", err)
	}
}

func TestContainer_Subscribe(t *testing.T) {
	c := NewContainer(DefaultState(), testLogger())

	ch, unsubscribe := c.Subscribe()
	if got := <-ch; got.Status != domain.AlertStatusAll {
		t.Errorf("first snapshot status = %v, want all", got.Status)
	}

	c.Update(func(s State) State { return s.SetStatus(domain.AlertStatusActive) })
	c.Update(func(s State) State { return s.SetKuery("host.name: a") })

	got := <-ch
	if got.Status != domain.AlertStatusActive || got.Kuery != "host.name: a" {
		t.Errorf("latest snapshot = %+v", got)
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if c.Subscribers() != 0 {
		t.Errorf("Subscribers() = %v, want 0", c.Subscribers())
	}

	c.Update(func(s State) State { return s.SetKuery("") })
}

func TestContainer_Watch(t *testing.T) {
	c := NewContainer(DefaultState(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	seen := make(chan State, 10)
	done := make(chan struct{})
	go func() {
		c.Watch(ctx, func(s State) { seen <- s })
		close(done)
	}()

	<-seen
	c.Update(func(s State) State { return s.SetRangeFrom("now-1h") })

	select {
	case s := <-seen:
		if s.RangeFrom != "now-1h" {
			t.Errorf("RangeFrom = %v, want now-1h", s.RangeFrom)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state received")
	}

	cancel()
	<-done
}

func TestStatusKuery(t *testing.T) {
	tests := []struct {
		status domain.AlertStatus
		want   string
	}{
		{domain.AlertStatusAll, ""},
		{"", ""},
		{domain.AlertStatusActive, `kibana.alert.status: "active"`},
		{domain.AlertStatusUntracked, `kibana.alert.status: "untracked"`},
	}

	for _, tt := range tests {
		if got := StatusKuery(tt.status); got != tt.want {
			t.Errorf("StatusKuery(%v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestBuildSearchParams(t *testing.T) {
	s := DefaultState().
		SetStatus(domain.AlertStatusActive).
		SetFilters([]domain.Filter{hostFilter("a")}).
		SetControlFilters([]domain.Filter{hostFilter("b")})

	params, err := BuildSearchParams(s, Page{
		FeatureIDs: []domain.FeatureID{domain.FeatureLogs},
		PageIndex:  2,
		PageSize:   20,
	})
	if err != nil {
		t.Fatalf("BuildSearchParams error: %v", err)
	}

	if params.PageIndex != 2 || params.PageSize != 20 {
		t.Errorf("page = %v/%v, want 2/20", params.PageIndex, params.PageSize)
	}
	filter := params.Query["bool"].(map[string]any)["filter"].([]any)
	// status kuery, two filters, time range
	if len(filter) != 4 {
		t.Fatalf("len(filter) = %v, want 4: %v", len(filter), filter)
	}
	wantRange := map[string]any{"range": map[string]any{"@timestamp": map[string]any{"gte": "now-24h", "lte": "now"}}}
	if diff := cmp.Diff(wantRange, filter[3]); diff != "" {
		t.Errorf("range clause mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildSearchParams_InvalidKuery(t *testing.T) {
	s := DefaultState().SetKuery("host.name: (a")

	_, err := BuildSearchParams(s, Page{FeatureIDs: []domain.FeatureID{domain.FeatureLogs}})
	if !errors.Is(err, kql.ErrSyntax) {
		t.Errorf("error = %v, want kql.ErrSyntax", err)
	}
}
