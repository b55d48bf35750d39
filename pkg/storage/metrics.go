package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StorageErrors tracks failed store operations by operation and backend.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_cache_storage_errors_total",
			Help: "Total number of failed storage operations",
		},
		[]string{"operation", "backend"}, // "open", "get", "put", "delete"
	)

	// StorageOpens tracks how often a backend was actually opened.
	StorageOpens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_cache_storage_opens_total",
			Help: "Total number of storage open attempts by result",
		},
		[]string{"result"}, // "ok", "error"
	)
)
