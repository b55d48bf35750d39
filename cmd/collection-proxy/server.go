package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/Sternrassler/collection-cache/pkg/metrics"
	"github.com/Sternrassler/collection-cache/pkg/storage"
	"github.com/Sternrassler/collection-cache/pkg/swr"
)

// Response headers describing how a collection was served.
const (
	headerCache       = "X-Cache"
	headerFetchStatus = "X-Fetch-Status"
)

// opener is the part of storage.Lazy the readiness check needs.
type opener interface {
	Open(ctx context.Context) (storage.Store, error)
}

func newHandler(sync *swr.Synchronizer, store opener) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(store))
	mux.HandleFunc("GET /collection", collectionHandler(sync))
	mux.HandleFunc("DELETE /collection", clearHandler(sync))
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the store can be opened. The proxy still
// serves from the network when it cannot.
func readyHandler(store opener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := store.Open(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func collectionHandler(sync *swr.Synchronizer) http.HandlerFunc {
	logger := logging.NewLogger("proxy")

	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := parseFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := sync.Load(r.Context(), filters)
		w.Header().Set(headerFetchStatus, res.FetchStatus.String())
		if res.Path == swr.StateCacheHit {
			w.Header().Set(headerCache, "hit")
		} else {
			w.Header().Set(headerCache, "miss")
		}

		if err != nil {
			logger.Error().Err(err).Stringer("filters", filters).Msg("Collection load failed")
			writeError(w, http.StatusBadGateway, "collection fetch failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res.Data); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
		}
	}
}

func clearHandler(sync *swr.Synchronizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sync.Clear(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "clear failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// parseFilters reads archived (default false) and search from the query.
func parseFilters(r *http.Request) (cache.Filters, error) {
	q := r.URL.Query()

	var filters cache.Filters
	if raw := q.Get("archived"); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			return cache.Filters{}, fmt.Errorf("archived must be a boolean (got %q)", raw)
		}
		filters.Archived = archived
	}
	filters.Search = q.Get("search")

	return filters, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
