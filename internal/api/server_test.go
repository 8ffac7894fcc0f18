package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"alertscope/internal/alertsapi/memory"
	"alertscope/internal/alertsquery"
	"alertscope/internal/config"
	"alertscope/internal/dataview"
	"alertscope/internal/domain"
	"alertscope/internal/explorer"
	"alertscope/internal/filtergroup"
	"alertscope/internal/notification"
	memoryqueue "alertscope/internal/queue/memory"
	storemem "alertscope/internal/store/memory"
	"alertscope/schema"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func testServer(t *testing.T) (*Server, *notification.Toasts) {
	s, toasts, _ := testServerWithQueue(t)
	return s, toasts
}

// testServerWithQueue also wires the ingest endpoint to an unconsumed memory queue.
func testServerWithQueue(t *testing.T) (*Server, *notification.Toasts, *memoryqueue.Queue) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	client := memory.NewClient(schema.SampleAlerts(time.Now(), 50))
	toasts := notification.NewToasts(0, logger)
	views := dataview.NewMemoryService(client, logger)
	resolver := dataview.NewResolver(client, client, views, toasts, logger)
	coordinator := alertsquery.NewCoordinator(client, client.Name(), alertsquery.Options{
		Cache:    storemem.NewResultCache(),
		CacheTTL: time.Minute,
	}, logger)
	manager := explorer.NewManager(explorer.Dependencies{
		Resolver:        resolver,
		Fetcher:         coordinator,
		Storage:         storemem.NewKeyValueStore(),
		DefaultControls: config.DefaultControls(),
		DebounceDelay:   10 * time.Millisecond,
		MaxControls:     6,
	}, logger)
	t.Cleanup(func() { _ = manager.Close() })

	q := memoryqueue.NewQueue(16)
	t.Cleanup(func() { _ = q.Close() })

	server := NewServer(ServerDeps{
		Config:              &config.ServerConfig{Host: "localhost", Port: 0},
		Logger:              logger,
		SearchHandler:       NewSearchHandler(coordinator, resolver, views, logger),
		SessionHandler:      NewSessionHandler(manager, logger),
		FilterGroupHandler:  NewFilterGroupHandler(manager, logger),
		NotificationHandler: NewNotificationHandler(toasts),
		IngestHandler:       NewIngestHandler(filtergroup.NewQueueSink(q, logger), logger),
	})
	return server, toasts, q
}

func do(t *testing.T, s *Server, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode, env
}

func TestServer_Health(t *testing.T) {
	s, _ := testServer(t)

	status, env := do(t, s, http.MethodGet, "/healthz", nil)
	if status != http.StatusOK || !env.Success {
		t.Errorf("status = %v success = %v, want 200 true", status, env.Success)
	}
}

func TestServer_Search(t *testing.T) {
	s, _ := testServer(t)

	status, env := do(t, s, http.MethodPost, "/v1/alerts/_search", map[string]any{
		"featureIds": []string{"siem"},
		"pageSize":   3,
		"sort":       []any{map[string]any{"@timestamp": "desc"}},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %v, want 200: %+v", status, env.Error)
	}

	var result domain.SearchAlertsResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Total != 10 || len(result.Alerts) != 3 {
		t.Errorf("total = %v alerts = %v, want 10 and 3", result.Total, len(result.Alerts))
	}
}

func TestServer_SearchErrors(t *testing.T) {
	s, _ := testServer(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"no features", map[string]any{"featureIds": []string{}}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown feature", map[string]any{"featureIds": []string{"nope"}}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"negative page", map[string]any{"featureIds": []string{"logs"}, "pageIndex": -1}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"page beyond result window", map[string]any{"featureIds": []string{"siem"}, "pageIndex": 1 << 61, "pageSize": 4}, http.StatusBadRequest, ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, s, http.MethodPost, "/v1/alerts/_search", tt.body)
			if status != tt.wantStatus {
				t.Errorf("status = %v, want %v", status, tt.wantStatus)
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %v", env.Error, tt.wantCode)
			}
		})
	}
}

func TestServer_DataView(t *testing.T) {
	s, toasts := testServer(t)

	status, env := do(t, s, http.MethodGet, "/v1/data-view?featureIds=siem", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %v, want 200", status)
	}
	var state domain.DataViewState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.DataView == nil || state.DataView.Title != ".alerts-security.alerts-default" {
		t.Fatalf("data view = %+v, want the security alerts index", state.DataView)
	}
	id := state.DataView.ID

	_, env = do(t, s, http.MethodGet, "/v1/data-view?featureIds=siem", nil)
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.DataView == nil || state.DataView.ID != id {
		t.Errorf("data view = %+v, want id %v again", state.DataView, id)
	}

	status, env = do(t, s, http.MethodGet, "/v1/data-views/"+id, nil)
	if status != http.StatusOK {
		t.Errorf("status = %v, want 200", status)
	}
	var view domain.DataView
	if err := json.Unmarshal(env.Data, &view); err != nil || view.ID != id {
		t.Errorf("view = %+v (%v), want id %v", view, err, id)
	}
	if status, _ := do(t, s, http.MethodGet, "/v1/data-views/missing", nil); status != http.StatusNotFound {
		t.Errorf("status = %v, want 404", status)
	}

	_, env = do(t, s, http.MethodGet, "/v1/data-view?featureIds=siem,logs", nil)
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.DataView != nil || state.IsLoading {
		t.Errorf("state = %+v, want no data view for mixed features", state)
	}
	if len(toasts.Recent()) != 0 {
		t.Error("no toast expected")
	}

	status, _ = do(t, s, http.MethodGet, "/v1/data-view?featureIds=bogus", nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %v, want 400", status)
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	s, _ := testServer(t)

	status, env := do(t, s, http.MethodPost, "/v1/sessions", map[string]any{
		"featureIds": []string{"siem"},
		"page":       map[string]any{"pageSize": 5},
	})
	if status != http.StatusCreated {
		t.Fatalf("status = %v, want 201: %+v", status, env.Error)
	}
	var info explorer.Info
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	base := "/v1/sessions/" + info.ID

	status, env = do(t, s, http.MethodGet, base+"/alerts?wait=true", nil)
	if status != http.StatusOK {
		t.Fatalf("alerts status = %v: %+v", status, env.Error)
	}

	status, env = do(t, s, http.MethodPatch, base+"/search-bar", map[string]any{"status": "recovered"})
	if status != http.StatusOK {
		t.Fatalf("search bar status = %v: %+v", status, env.Error)
	}

	status, _ = do(t, s, http.MethodPatch, base+"/search-bar", map[string]any{"status": "flapping"})
	if status != http.StatusBadRequest {
		t.Errorf("invalid status = %v, want 400", status)
	}

	status, _ = do(t, s, http.MethodPut, base+"/page", map[string]any{"pageIndex": 1})
	if status != http.StatusOK {
		t.Errorf("page status = %v, want 200", status)
	}

	status, _ = do(t, s, http.MethodGet, "/v1/sessions", nil)
	if status != http.StatusOK {
		t.Errorf("list status = %v, want 200", status)
	}

	status, _ = do(t, s, http.MethodDelete, base, nil)
	if status != http.StatusNoContent {
		t.Errorf("delete status = %v, want 204", status)
	}
	status, env = do(t, s, http.MethodGet, base, nil)
	if status != http.StatusNotFound || env.Error.Code != ErrCodeNotFound {
		t.Errorf("get deleted = %v %+v, want 404", status, env.Error)
	}
}

func TestServer_FilterGroup(t *testing.T) {
	s, _ := testServer(t)

	_, env := do(t, s, http.MethodPost, "/v1/sessions", map[string]any{"featureIds": []string{"logs"}})
	var info explorer.Info
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	base := "/v1/sessions/" + info.ID + "/filter-group"

	status, env := do(t, s, http.MethodPost, base+"/controls", map[string]any{"fieldName": "host.name"})
	if status != http.StatusConflict {
		t.Errorf("add in view mode = %v, want 409", status)
	}

	if status, env = do(t, s, http.MethodPost, base+"/edit", nil); status != http.StatusOK {
		t.Fatalf("edit status = %v: %+v", status, env.Error)
	}
	if status, env = do(t, s, http.MethodPost, base+"/controls", map[string]any{"fieldName": "host.name"}); status != http.StatusOK {
		t.Fatalf("add status = %v: %+v", status, env.Error)
	}

	var state struct {
		ViewMode          domain.ViewMode     `json:"viewMode"`
		HasPendingChanges bool                `json:"hasPendingChanges"`
		Controls          []domain.FilterItem `json:"controls"`
	}
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.ViewMode != domain.ViewModeEdit || !state.HasPendingChanges {
		t.Errorf("state = %+v, want edit mode with pending changes", state)
	}

	status, env = do(t, s, http.MethodPost, base+"/discard", nil)
	if status != http.StatusOK {
		t.Fatalf("discard status = %v: %+v", status, env.Error)
	}
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	for _, c := range state.Controls {
		if c.FieldName == "host.name" {
			t.Error("discarded control still present")
		}
	}

	status, _ = do(t, s, http.MethodPut, base+"/selection", map[string]any{
		"fieldName": "kibana.alert.status",
		"selection": map[string]any{"selectedOptions": []string{"recovered"}},
	})
	if status != http.StatusOK {
		t.Errorf("selection status = %v, want 200", status)
	}

	status, _ = do(t, s, http.MethodPost, base+"/explode", nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown command status = %v, want 404", status)
	}
}

func TestServer_Notifications(t *testing.T) {
	s, toasts := testServer(t)
	toasts.AddDanger("Unable to load alert data view", "boom")
	toasts.AddSuccess("Saved", "")

	_, env := do(t, s, http.MethodGet, "/v1/notifications?color=danger", nil)
	var list []notification.Toast
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode toasts: %v", err)
	}
	if len(list) != 1 || list[0].Color != notification.ColorDanger {
		t.Errorf("toasts = %+v, want one danger toast", list)
	}
}

func TestServer_IngestFilterChange(t *testing.T) {
	s, _, q := testServerWithQueue(t)

	status, env := do(t, s, http.MethodPost, "/v1/filter-changes", map[string]any{
		"space_id": "default",
		"filters": []any{map[string]any{
			"meta":  map[string]any{"key": "host.name"},
			"query": map[string]any{"match_phrase": map[string]any{"host.name": "web-01"}},
		}},
	})
	if status != http.StatusAccepted {
		t.Fatalf("status = %v, want 202: %+v", status, env.Error)
	}
	if q.Len() != 1 {
		t.Errorf("queued = %v, want 1", q.Len())
	}

	status, env = do(t, s, http.MethodPost, "/v1/filter-changes", map[string]any{"filters": []any{}})
	if status != http.StatusBadRequest || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("missing space = %v %+v, want 400", status, env.Error)
	}
	if q.Len() != 1 {
		t.Errorf("queued = %v, want 1 after rejected change", q.Len())
	}
}
