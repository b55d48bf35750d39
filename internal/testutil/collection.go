// Package testutil provides testing utilities for the collection cache.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Item is a record served by MockCollection.
type Item struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// MockCollection is a configurable paginated collection endpoint for testing.
// It serves Items filtered by the archived and search query parameters, as a
// {"results":[...],"next":...} envelope of PageSize items per page, or as a
// bare array when BareList is set.
type MockCollection struct {
	server *httptest.Server
	mu     sync.RWMutex

	items    []Item
	pageSize int
	bareList bool
	delay    time.Duration
	failures map[int]int

	// Tracking
	requestCount  int
	lastUserAgent string
}

// NewMockCollection creates a mock endpoint serving items, pageSize per page.
func NewMockCollection(items []Item, pageSize int) *MockCollection {
	if pageSize < 1 {
		pageSize = 1
	}
	mock := &MockCollection{
		items:    items,
		pageSize: pageSize,
		failures: make(map[int]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// GenerateItems returns n items, every second one archived.
func GenerateItems(n int) []Item {
	items := make([]Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, Item{
			ID:       i,
			Name:     fmt.Sprintf("item-%03d", i),
			Archived: i%2 == 0,
		})
	}
	return items
}

// URL returns the collection endpoint URL.
func (m *MockCollection) URL() string {
	return m.server.URL + "/items/"
}

// Close shuts down the mock server.
func (m *MockCollection) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCollection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastUserAgent = ""
}

// SetItems replaces the served collection.
func (m *MockCollection) SetItems(items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

// SetBareList switches between bare array and envelope responses.
func (m *MockCollection) SetBareList(bare bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bareList = bare
}

// SetDelay delays every response.
func (m *MockCollection) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailPage makes every request for page n answer with status.
// A status of 0 removes the failure.
func (m *MockCollection) FailPage(n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == 0 {
		delete(m.failures, n)
		return
	}
	m.failures[n] = status
}

// RequestCount returns the number of requests made to the server.
func (m *MockCollection) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockCollection) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

// Matching returns the items a query for archived and search would return.
func (m *MockCollection) Matching(archived bool, search string) []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterItems(m.items, archived, search)
}

func filterItems(items []Item, archived bool, search string) []Item {
	matched := []Item{}
	for _, item := range items {
		if item.Archived != archived {
			continue
		}
		if search != "" && !strings.Contains(item.Name, search) {
			continue
		}
		matched = append(matched, item)
	}
	return matched
}

func (m *MockCollection) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.lastUserAgent = r.Header.Get("User-Agent")
	delay := m.delay
	bare := m.bareList
	pageSize := m.pageSize
	failures := make(map[int]int, len(m.failures))
	for k, v := range m.failures {
		failures[k] = v
	}
	items := m.items
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	q := r.URL.Query()
	archived, _ := strconv.ParseBool(q.Get("archived"))
	search := q.Get("search")
	page := 1
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			http.Error(w, `{"error":"invalid page"}`, http.StatusBadRequest)
			return
		}
		page = n
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if status, ok := failures[page]; ok {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"injected failure"}`))
		return
	}

	matched := filterItems(items, archived, search)

	if bare {
		json.NewEncoder(w).Encode(matched)
		return
	}

	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	body := struct {
		Count   int     `json:"count"`
		Results []Item  `json:"results"`
		Next    *string `json:"next"`
	}{Count: len(matched), Results: matched[start:end]}

	if end < len(matched) {
		next := q
		next.Set("page", strconv.Itoa(page+1))
		// relative, so clients must resolve it against the page URL
		link := r.URL.Path + "?" + next.Encode()
		body.Next = &link
	}

	json.NewEncoder(w).Encode(body)
}
