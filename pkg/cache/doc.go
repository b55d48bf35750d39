// Package cache provides the local, filter-scoped collection cache.
//
// An entry is a snapshot of the whole remote collection for one set of
// filters, stamped with a schema version and the time it was written. An
// entry is served only while all of the following hold:
//
// - its version equals the version the reader expects
// - it is younger than the TTL (default 5 minutes)
// - its filters equal the requested filters
//
// # Basic Usage
//
//	store := storage.NewLazy(storage.PebbleOpener(storage.PebbleConfig{
//		Path: "/var/lib/app/collection-cache",
//	}), logging.NewLogger("storage"))
//
//	c := cache.New(store, cache.DefaultConfig())
//
//	filters := cache.Filters{Archived: false, Search: "invoice"}
//	if data, ok := c.Get(ctx, filters); ok {
//		// serve data
//	}
//
//	c.Set(ctx, fresh, filters)
//
// # Validation
//
// Classify is a pure function: it reports Absent, Fresh, Stale,
// VersionMismatch or FilterMismatch and changes nothing. EvictIfInvalid is
// the explicit step that deletes Stale and VersionMismatch entries. Validate
// and Get run both. A FilterMismatch never deletes, since the entry may still
// be valid for the filters it was written with.
//
// # Modes
//
// ModeSingleSlot stores one entry under a fixed key. Set for one filter set
// overwrites the entry of any other, and concurrent writers race with the last
// write winning. ModeKeyed stores one entry per filter combination with an LRU
// bound (MaxEntries), so filter sets no longer overwrite each other.
//
// # Metrics
//
//   - collection_cache_hits_total - Cache hits
//   - collection_cache_misses_total{cause} - Misses by cause
//   - collection_cache_evictions_total{reason} - Deleted entries
//   - collection_cache_entry_bytes - Size of the last written entry
//   - collection_cache_errors_total{operation} - Storage failures
package cache
