package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks successfully fetched pages
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collection_pages_fetched_total",
		Help: "Total number of collection pages fetched",
	})

	// PageRetries tracks retry attempts for failed pages
	PageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collection_page_retries_total",
		Help: "Total number of page fetch retry attempts",
	})

	// RetryExhausted tracks pages that failed on every attempt
	RetryExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collection_page_retry_exhausted_total",
		Help: "Total number of pages that exhausted their retry attempts",
	})

	// FetchResults tracks full-collection fetches by outcome
	FetchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collection_fetch_results_total",
		Help: "Total number of full collection fetches by result status",
	}, []string{"status"}) // "complete", "partial", "failed"

	// FetchDuration tracks how long full-collection fetches take
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collection_fetch_duration_seconds",
		Help:    "Full collection fetch duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
