// Package metrics provides the Prometheus registry and HTTP handler for the
// collection cache. All metrics are defined in their respective packages
// (storage, cache, pagination, client, swr) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the collection cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer exposes what Registry collected.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Storage Metrics (pkg/storage):
//   - collection_cache_storage_errors_total{operation, backend} (Counter): Failed store operations
//   - collection_cache_storage_opens_total{result} (Counter): Lazy store open attempts
//
// Cache Metrics (pkg/cache):
//   - collection_cache_hits_total (Counter): Fresh entries served
//   - collection_cache_misses_total{cause} (Counter): Misses by cause (absent, stale,
//     version_mismatch, filter_mismatch, storage_error, corrupt)
//   - collection_cache_evictions_total{reason} (Counter): Deleted entries (stale, version_mismatch,
//     corrupt, lru, clear)
//   - collection_cache_entry_bytes (Gauge): Size of the last written entry
//   - collection_cache_errors_total{operation} (Counter): Cache operation errors
//
// Collector Metrics (pkg/pagination):
//   - collection_pages_fetched_total (Counter): Pages fetched
//   - collection_page_retries_total (Counter): Page retry attempts
//   - collection_page_retry_exhausted_total (Counter): Pages that failed every attempt
//   - collection_fetch_results_total{status} (Counter): Full fetches by complete, partial, failed
//   - collection_fetch_duration_seconds (Histogram): Full fetch duration
//
// Request Metrics (pkg/client):
//   - collection_requests_total{status} (Counter): Page requests by HTTP status or network_error
//   - collection_request_duration_seconds (Histogram): Page request duration
//
// Synchronizer Metrics (pkg/swr):
//   - collection_sync_loads_total{path} (Counter): Loads by cache_hit or cold_fetch
//   - collection_background_refreshes_total{result} (Counter): Finished refreshes by result
//   - collection_background_refreshes_in_flight (Gauge): Refreshes running now
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(collection_cache_hits_total[5m])) /
//   (sum(rate(collection_cache_hits_total[5m])) + sum(rate(collection_cache_misses_total[5m])))
//
//   # Share of partial collections
//   rate(collection_fetch_results_total{status="partial"}[5m]) / rate(collection_fetch_results_total[5m])
//
//   # P95 Full Fetch Latency
//   histogram_quantile(0.95, rate(collection_fetch_duration_seconds_bucket[5m]))
