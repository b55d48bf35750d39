package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks reads served from the store
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collection_cache_hits_total",
			Help: "Total number of collection cache hits",
		},
	)

	// CacheMisses tracks reads that fell through to the network, by cause
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_cache_misses_total",
			Help: "Total number of collection cache misses by cause",
		},
		[]string{"cause"}, // "absent", "stale", "version_mismatch", "filter_mismatch", "corrupt", "storage_error"
	)

	// CacheEvictions tracks deleted entries by reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_cache_evictions_total",
			Help: "Total number of evicted collection cache entries by reason",
		},
		[]string{"reason"}, // "stale", "version_mismatch", "corrupt", "lru", "clear"
	)

	// CacheEntryBytes tracks the encoded size of the last written entry
	CacheEntryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collection_cache_entry_bytes",
			Help: "Encoded size of the most recently written collection cache entry",
		},
	)

	// CacheErrors tracks storage failures seen at the cache boundary
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "index"
	)
)
