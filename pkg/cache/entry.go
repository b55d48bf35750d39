package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is one item of the remote collection, kept as the raw JSON object
// the server returned.
type Record = json.RawMessage

// Filters are the query parameters a collection snapshot was fetched with.
//
// An empty Search means "no search": the collector never sends an empty
// search parameter, so both forms denote the same query. Two Filters match
// only when they are equal (==) on both fields.
type Filters struct {
	Archived bool   `json:"archived"`
	Search   string `json:"search,omitempty"`
}

// Entry is a versioned, timestamped snapshot of the whole collection for one
// set of filters. Entries are always replaced wholesale, never merged.
type Entry struct {
	// Version is the schema version the entry was written with.
	Version string `json:"version"`

	// Timestamp is when the snapshot was stored.
	Timestamp time.Time `json:"timestamp"`

	// Data is the collection in server order.
	Data []Record `json:"data"`

	// Filters are the filters the snapshot was fetched with.
	Filters Filters `json:"filters"`
}

// storedEntry is the persisted form of an Entry. Records are kept as raw
// bytes (base64 in JSON) because encoding a json.RawMessage compacts and
// HTML-escapes it, and a cache hit must return the bytes the server sent.
type storedEntry struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      [][]byte  `json:"data"`
	Filters   Filters   `json:"filters"`
}

func encodeEntry(e Entry) ([]byte, error) {
	stored := storedEntry{
		Version:   e.Version,
		Timestamp: e.Timestamp,
		Data:      make([][]byte, len(e.Data)),
		Filters:   e.Filters,
	}
	for i, rec := range e.Data {
		stored.Data[i] = rec
	}
	return json.Marshal(stored)
}

func decodeEntry(data []byte) (Entry, error) {
	var stored storedEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return Entry{}, err
	}
	if stored.Data == nil {
		return Entry{}, fmt.Errorf("entry has no data")
	}

	entry := Entry{
		Version:   stored.Version,
		Timestamp: stored.Timestamp,
		Data:      make([]Record, len(stored.Data)),
		Filters:   stored.Filters,
	}
	for i, rec := range stored.Data {
		entry.Data[i] = Record(rec)
	}
	return entry, nil
}

// Age returns how old the entry is at now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// IsExpired returns true once the entry is ttl old or older.
func (e *Entry) IsExpired(now time.Time, ttl time.Duration) bool {
	return e.Age(now) >= ttl
}
