package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/pagination"
)

// ScriptedFetcher is an in-process pagination.PageFetcher serving PageCount
// pages of PerPage records for every filter combination. Records look like
// {"id":N,"filters":"<filters.Key()>"} so tests can tell which query produced them.
type ScriptedFetcher struct {
	PageCount int
	PerPage   int

	// LoopAt makes page LoopAt link back to page 1. 0 disables.
	LoopAt int

	mu       sync.Mutex
	failures map[int][]error
	always   map[int]error
	holds    map[string]chan struct{}
	calls    int
	started  chan string
}

const scriptedScheme = "scripted:"

// NewScriptedFetcher creates a fetcher with pageCount pages of perPage records.
func NewScriptedFetcher(pageCount, perPage int) *ScriptedFetcher {
	return &ScriptedFetcher{
		PageCount: pageCount,
		PerPage:   perPage,
		failures:  make(map[int][]error),
		always:    make(map[int]error),
		holds:     make(map[string]chan struct{}),
		started:   make(chan string, 256),
	}
}

// FailPage makes the next len(errs) fetches of page n return errs in order.
func (f *ScriptedFetcher) FailPage(n int, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[n] = append(f.failures[n], errs...)
}

// FailPageAlways makes every fetch of page n return err.
func (f *ScriptedFetcher) FailPageAlways(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[n] = err
}

// Hold blocks first-page fetches for filters until the returned release
// function is called.
func (f *ScriptedFetcher) Hold(filters cache.Filters) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.holds[filters.Key()] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// Started receives the filter key of every first-page fetch as it begins.
func (f *ScriptedFetcher) Started() <-chan string {
	return f.started
}

// Calls returns the number of FetchPage calls so far.
func (f *ScriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FirstPageURL implements pagination.PageFetcher.
func (f *ScriptedFetcher) FirstPageURL(filters cache.Filters) string {
	return scriptedURL(filters.Key(), 1)
}

// FetchPage implements pagination.PageFetcher.
func (f *ScriptedFetcher) FetchPage(ctx context.Context, pageURL string) (pagination.Page, error) {
	key, n, err := parseScriptedURL(pageURL)
	if err != nil {
		return pagination.Page{}, err
	}

	f.mu.Lock()
	f.calls++
	hold := f.holds[key]
	var injected error
	if queued := f.failures[n]; len(queued) > 0 {
		injected = queued[0]
		f.failures[n] = queued[1:]
	} else if e, ok := f.always[n]; ok {
		injected = e
	}
	f.mu.Unlock()

	if n == 1 {
		select {
		case f.started <- key:
		default:
		}
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
				return pagination.Page{}, ctx.Err()
			}
		}
	}

	if injected != nil {
		return pagination.Page{}, injected
	}

	page := pagination.Page{Items: make([]cache.Record, 0, f.PerPage)}
	for i := 0; i < f.PerPage; i++ {
		page.Items = append(page.Items, ScriptedRecord((n-1)*f.PerPage+i+1, key))
	}

	switch {
	case f.LoopAt > 0 && n == f.LoopAt:
		page.Next = scriptedURL(key, 1)
	case n < f.PageCount:
		page.Next = scriptedURL(key, n+1)
	}

	return page, nil
}

// ScriptedRecord returns the record a ScriptedFetcher serves at position id
// for the filters with the given key.
func ScriptedRecord(id int, filtersKey string) cache.Record {
	data, _ := json.Marshal(struct {
		ID      int    `json:"id"`
		Filters string `json:"filters"`
	}{ID: id, Filters: filtersKey})
	return data
}

func scriptedURL(key string, n int) string {
	return fmt.Sprintf("%s%s/page/%d", scriptedScheme, key, n)
}

func parseScriptedURL(pageURL string) (string, int, error) {
	rest, ok := strings.CutPrefix(pageURL, scriptedScheme)
	if !ok {
		return "", 0, fmt.Errorf("unexpected page url %q", pageURL)
	}
	i := strings.LastIndex(rest, "/page/")
	if i < 0 {
		return "", 0, fmt.Errorf("unexpected page url %q", pageURL)
	}
	n, err := strconv.Atoi(rest[i+len("/page/"):])
	if err != nil {
		return "", 0, fmt.Errorf("unexpected page url %q: %w", pageURL, err)
	}
	return rest[:i], n, nil
}
