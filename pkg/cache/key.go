package cache

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// KeyPrefix namespaces every key the cache writes.
	KeyPrefix = "collection-cache"

	// SlotKey is the single fixed key used in single-slot mode.
	SlotKey = KeyPrefix + ":entry"

	// IndexKey holds the LRU order of entry keys in keyed mode.
	IndexKey = KeyPrefix + ":index"
)

// Key generates a deterministic per-filter key for keyed mode.
// Format: collection-cache:entry:archived=<bool>[:search=<escaped>]
//
// Example:
//
//	collection-cache:entry:archived=false:search=annual%3Areport
func (f Filters) Key() string {
	parts := []string{SlotKey, "archived=" + strconv.FormatBool(f.Archived)}

	// Escaped so a ':' inside the search term cannot collide with the separator
	if f.Search != "" {
		parts = append(parts, "search="+url.QueryEscape(f.Search))
	}

	return strings.Join(parts, ":")
}

// String implements fmt.Stringer for log fields.
func (f Filters) String() string {
	if f.Search == "" {
		return "archived=" + strconv.FormatBool(f.Archived)
	}
	return "archived=" + strconv.FormatBool(f.Archived) + " search=" + strconv.Quote(f.Search)
}
