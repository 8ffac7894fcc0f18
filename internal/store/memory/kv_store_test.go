package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"alertscope/internal/domain"
	"alertscope/internal/store"
)

func TestKeyValueStore_Operations(t *testing.T) {
	s := NewKeyValueStore()
	ctx := context.Background()

	// Get on empty store
	var got []domain.FilterItem
	found, err := s.Get(ctx, "unifiedAlerts.default.pageFilters", &got)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if found {
		t.Error("Expected key to be missing")
	}

	controls := []domain.FilterItem{
		{FieldName: "kibana.alert.severity", SelectedOptions: []string{"high"}},
		{FieldName: "host.name"},
	}
	if err := s.Set(ctx, "unifiedAlerts.default.pageFilters", controls); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// Mutating the original must not affect the stored value
	controls[0].SelectedOptions[0] = "low"

	found, err = s.Get(ctx, "unifiedAlerts.default.pageFilters", &got)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !found {
		t.Fatal("Expected key to be found")
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].SelectedOptions[0] != "high" {
		t.Errorf("SelectedOptions[0] = %v, want high", got[0].SelectedOptions[0])
	}

	if err := s.Delete(ctx, "unifiedAlerts.default.pageFilters"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}

	// Deleting a missing key is fine
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing key error: %v", err)
	}
}

func TestKeyValueStore_Closed(t *testing.T) {
	s := NewKeyValueStore()
	ctx := context.Background()

	_ = s.Close()

	if err := s.Set(ctx, "k", "v"); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Set after close error = %v, want ErrStoreClosed", err)
	}
	var v string
	if _, err := s.Get(ctx, "k", &v); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Get after close error = %v, want ErrStoreClosed", err)
	}
}

func TestResultCache_Expiration(t *testing.T) {
	c := NewResultCache()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	result := &domain.SearchAlertsResult{
		Total:  1,
		Alerts: []domain.Alert{{"_id": "a-1"}},
	}
	if err := c.Set(ctx, "key-1", result, time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := c.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || got.Total != 1 {
		t.Fatalf("Get = %+v, want total 1", got)
	}

	// The cached slices are not shared with the caller
	got.Alerts = append(got.Alerts, domain.Alert{"_id": "a-2"})
	again, _ := c.Get(ctx, "key-1")
	if len(again.Alerts) != 1 {
		t.Errorf("len(Alerts) = %d, want 1", len(again.Alerts))
	}

	now = now.Add(2 * time.Minute)
	got, err = c.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Error("Expected expired entry to be nil")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after lazy expiration", c.Len())
	}
}

func TestResultCache_SweepsUnreadEntries(t *testing.T) {
	c := NewResultCache()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	result := &domain.SearchAlertsResult{Total: 1}
	for i := 0; i < 50; i++ {
		if err := c.Set(ctx, fmt.Sprintf("page-%d", i), result, 30*time.Second); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}
	if c.Len() != 50 {
		t.Fatalf("Len() = %d, want 50", c.Len())
	}

	// None of the pages is read again; the next write past the sweep
	// interval drops them.
	now = now.Add(2 * time.Minute)
	if err := c.Set(ctx, "page-next", result, 30*time.Second); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after sweep", c.Len())
	}
}

func TestResultCache_MaxEntries(t *testing.T) {
	c := NewResultCache()
	c.maxEntries = 3
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	result := &domain.SearchAlertsResult{Total: 1}
	for i, ttl := range []time.Duration{3 * time.Minute, time.Minute, 2 * time.Minute} {
		if err := c.Set(ctx, fmt.Sprintf("key-%d", i), result, ttl); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}

	// Overwriting an existing key never evicts.
	if err := c.Set(ctx, "key-0", result, 3*time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}

	if err := c.Set(ctx, "key-3", result, 5*time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if got, _ := c.Get(ctx, "key-1"); got != nil {
		t.Error("entry closest to expiry should have been evicted")
	}
	for _, key := range []string{"key-0", "key-2", "key-3"} {
		if got, _ := c.Get(ctx, key); got == nil {
			t.Errorf("Get(%q) = nil, want cached result", key)
		}
	}
}
