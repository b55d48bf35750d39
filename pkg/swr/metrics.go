package swr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncLoads tracks foreground loads by the path they took
	SyncLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collection_sync_loads_total",
		Help: "Total number of synchronizer loads by path",
	}, []string{"path"}) // "cache_hit", "cold_fetch"

	// BackgroundRefreshes tracks finished background refreshes
	BackgroundRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collection_background_refreshes_total",
		Help: "Total number of background refreshes by result",
	}, []string{"result"}) // "complete", "partial", "discarded", "failed"

	// BackgroundRefreshesInFlight tracks refreshes currently running
	BackgroundRefreshesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collection_background_refreshes_in_flight",
		Help: "Number of background refreshes currently running",
	})
)
