package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/collection-cache/internal/config"
	"github.com/Sternrassler/collection-cache/internal/testutil"
)

func setupTestApp(t *testing.T, endpoint string, overrides map[string]any) *app {
	t.Helper()

	v := config.New()
	v.Set("endpoint", endpoint)
	v.Set("store.path", filepath.Join(t.TempDir(), "cache.db"))
	v.Set("fetch.max_attempts", 1)
	for key, value := range overrides {
		v.Set(key, value)
	}

	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	a, err := build(cfg)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func getCollection(t *testing.T, handler http.Handler, query string) (*http.Response, []testutil.Item) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/collection"+query, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	var items []testutil.Item
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return resp, items
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	mock := testutil.NewMockCollection(testutil.GenerateItems(4), 10)
	defer mock.Close()

	t.Run("ready", func(t *testing.T) {
		a := setupTestApp(t, mock.URL(), nil)
		w := httptest.NewRecorder()

		readyHandler(a.store)(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready_store_down", func(t *testing.T) {
		a := setupTestApp(t, mock.URL(), nil)
		a.store.Close()
		w := httptest.NewRecorder()

		readyHandler(a.store)(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestCollectionEndpoint_MissThenHit(t *testing.T) {
	mock := testutil.NewMockCollection(testutil.GenerateItems(30), 4)
	defer mock.Close()

	a := setupTestApp(t, mock.URL(), nil)
	handler := newHandler(a.sync, a.store)

	resp, items := getCollection(t, handler, "?archived=false")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(headerCache); got != "miss" {
		t.Errorf("X-Cache = %q, want miss", got)
	}
	if got := resp.Header.Get(headerFetchStatus); got != "complete" {
		t.Errorf("X-Fetch-Status = %q, want complete", got)
	}

	want := mock.Matching(false, "")
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, items[i], want[i])
		}
	}

	resp, items = getCollection(t, handler, "?archived=false")
	if got := resp.Header.Get(headerCache); got != "hit" {
		t.Errorf("second X-Cache = %q, want hit", got)
	}
	if len(items) != len(want) {
		t.Errorf("cached response has %d items, want %d", len(items), len(want))
	}

	a.sync.Wait()
}

func TestCollectionEndpoint_Search(t *testing.T) {
	mock := testutil.NewMockCollection(testutil.GenerateItems(30), 5)
	defer mock.Close()

	a := setupTestApp(t, mock.URL(), nil)
	handler := newHandler(a.sync, a.store)

	_, items := getCollection(t, handler, "?archived=true&search=item-01")
	want := mock.Matching(true, "item-01")
	if len(items) != len(want) || len(want) == 0 {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for _, item := range items {
		if !item.Archived || !strings.Contains(item.Name, "item-01") {
			t.Errorf("item %+v does not match the filters", item)
		}
	}
}

func TestCollectionEndpoint_BadArchived(t *testing.T) {
	mock := testutil.NewMockCollection(nil, 5)
	defer mock.Close()

	a := setupTestApp(t, mock.URL(), nil)

	resp, _ := getCollection(t, newHandler(a.sync, a.store), "?archived=maybe")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0", mock.RequestCount())
	}
}

func TestCollectionEndpoint_UpstreamDown(t *testing.T) {
	mock := testutil.NewMockCollection(testutil.GenerateItems(10), 5)
	defer mock.Close()
	mock.FailPage(1, http.StatusServiceUnavailable)

	a := setupTestApp(t, mock.URL(), nil)

	resp, _ := getCollection(t, newHandler(a.sync, a.store), "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(headerFetchStatus); got != "failed" {
		t.Errorf("X-Fetch-Status = %q, want failed", got)
	}
}

func TestCollectionEndpoint_Partial(t *testing.T) {
	mock := testutil.NewMockCollection(testutil.GenerateItems(40), 5)
	defer mock.Close()
	mock.FailPage(3, http.StatusInternalServerError)

	a := setupTestApp(t, mock.URL(), nil)

	resp, items := getCollection(t, newHandler(a.sync, a.store), "?archived=false")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(headerFetchStatus); got != "partial" {
		t.Errorf("X-Fetch-Status = %q, want partial", got)
	}
	if len(items) != 10 {
		t.Errorf("got %d items, want 10 from pages 1-2", len(items))
	}
}

func TestClearEndpoint(t *testing.T) {
	mock := testutil.NewMockCollection(testutil.GenerateItems(6), 10)
	defer mock.Close()

	a := setupTestApp(t, mock.URL(), nil)
	handler := newHandler(a.sync, a.store)

	getCollection(t, handler, "")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/collection", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}

	resp, _ := getCollection(t, handler, "")
	if got := resp.Header.Get(headerCache); got != "miss" {
		t.Errorf("X-Cache after clear = %q, want miss", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockCollection(testutil.GenerateItems(4), 10)
	defer mock.Close()

	a := setupTestApp(t, mock.URL(), nil)
	handler := newHandler(a.sync, a.store)

	// one load so the labelled series exist
	getCollection(t, handler, "")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	for _, name := range []string{
		"collection_sync_loads_total",
		"collection_fetch_results_total",
		"collection_requests_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func TestParseFilters(t *testing.T) {
	tests := []struct {
		query    string
		archived bool
		search   string
		wantErr  bool
	}{
		{query: "", archived: false},
		{query: "?archived=true", archived: true},
		{query: "?archived=1&search=red", archived: true, search: "red"},
		{query: "?search=a%20b", search: "a b"},
		{query: "?archived=nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			filters, err := parseFilters(httptest.NewRequest("GET", "/collection"+tt.query, nil))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFilters() error = %v", err)
			}
			if filters.Archived != tt.archived || filters.Search != tt.search {
				t.Errorf("parseFilters() = %+v", filters)
			}
		})
	}
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--store-backend", "sqlite", "--endpoint", "http://localhost/items"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("Execute() error = %v, want store.backend validation error", err)
	}
}
