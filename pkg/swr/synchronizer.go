// Package swr orchestrates stale-while-revalidate loads of a paginated
// collection.
//
// A Load first asks the cache. A fresh entry is returned at once and a
// background refresh is scheduled for the same filters, so the next read is
// at most one refresh behind the server. A miss runs the collector in the
// foreground, stores the result and returns it.
//
// Refreshes run on a context detached from the caller: they are never
// canceled by a foreground load, and they are not canceled when the caller
// moves on to other filters. In single-slot cache mode this means writers for
// different filters race for the one slot and the last Set wins; callers
// that switched filters must re-validate on the next read instead of trusting
// a late onUpdate. Keyed cache mode removes the race.
package swr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/Sternrassler/collection-cache/pkg/pagination"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a detached collection fetch.
const DefaultRefreshTimeout = 2 * time.Minute

// State is a step of a load.
type State string

// Load states, in order: Idle, Validating, then CacheHit or ColdFetch, then Settled.
const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateCacheHit   State = "cache_hit"
	StateColdFetch  State = "cold_fetch"
	StateSettled    State = "settled"
)

// Collector fetches a complete collection. *pagination.Collector implements it.
type Collector interface {
	FetchAll(ctx context.Context, filters cache.Filters) pagination.Result
}

// UpdateFunc receives the fresh collection after a background refresh has
// written it.
type UpdateFunc func(data []cache.Record)

// Config holds synchronizer configuration.
type Config struct {
	// StorePartial writes Partial collector results to the cache and hands
	// them to onUpdate. Failed results are never written.
	StorePartial bool

	// RefreshTimeout bounds each detached fetch (default 2m).
	RefreshTimeout time.Duration

	// OnUpdate is called after background refreshes scheduled by Load.
	// It receives the filters the refresh ran for. Optional.
	OnUpdate func(filters cache.Filters, data []cache.Record)
}

// DefaultConfig returns the default synchronizer configuration.
// Partial results are stored, favoring some data over none.
func DefaultConfig() Config {
	return Config{
		StorePartial:   true,
		RefreshTimeout: DefaultRefreshTimeout,
	}
}

// LoadResult is the outcome of Load.
type LoadResult struct {
	// Data is the collection served to the caller. Never nil.
	Data []cache.Record

	// Path is StateCacheHit or StateColdFetch.
	Path State

	// FetchStatus is the collector status on the cold path, Complete on a hit.
	FetchStatus pagination.Status

	// Err is why a Partial fetch stopped early, or why it Failed.
	Err error
}

// Synchronizer serves collections stale-while-revalidate.
type Synchronizer struct {
	cache     *cache.Cache
	collector Collector
	config    Config
	logger    zerolog.Logger

	group singleflight.Group
	wg    sync.WaitGroup
}

// New creates a synchronizer over c and collector.
func New(c *cache.Cache, collector Collector, cfg Config) *Synchronizer {
	if c == nil {
		panic("cache cannot be nil")
	}
	if collector == nil {
		panic("collector cannot be nil")
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}

	return &Synchronizer{
		cache:     c,
		collector: collector,
		config:    cfg,
		logger:    logging.NewLogger("synchronizer"),
	}
}

// fetchOutcome is what a collapsed fetch shares with every waiter.
type fetchOutcome struct {
	result pagination.Result
	stored bool
}

// Load returns the collection for filters. An error is returned only when
// the cache missed and the collector fetched nothing at all.
func (s *Synchronizer) Load(ctx context.Context, filters cache.Filters) (LoadResult, error) {
	s.transition(filters, StateIdle, StateValidating)

	if data, ok := s.cache.Get(ctx, filters); ok {
		s.transition(filters, StateValidating, StateCacheHit)
		SyncLoads.WithLabelValues(string(StateCacheHit)).Inc()

		s.BackgroundRefresh(filters, func(data []cache.Record) {
			if s.config.OnUpdate != nil {
				s.config.OnUpdate(filters, data)
			}
		})

		s.transition(filters, StateCacheHit, StateSettled)
		return LoadResult{
			Data:        data,
			Path:        StateCacheHit,
			FetchStatus: pagination.Complete,
		}, nil
	}

	s.transition(filters, StateValidating, StateColdFetch)
	SyncLoads.WithLabelValues(string(StateColdFetch)).Inc()

	out := s.fetch(ctx, filters)
	s.transition(filters, StateColdFetch, StateSettled)

	res := LoadResult{
		Data:        out.result.Items,
		Path:        StateColdFetch,
		FetchStatus: out.result.Status,
		Err:         out.result.Err,
	}
	if res.Data == nil {
		res.Data = []cache.Record{}
	}

	if out.result.Status == pagination.Failed {
		s.logger.Error().
			Err(out.result.Err).
			Stringer("filters", filters).
			Msg("Cold fetch failed")
		return res, fmt.Errorf("cold fetch %s: %w", filters, out.result.Err)
	}

	s.logger.Info().
		Stringer("filters", filters).
		Str("status", out.result.Status.String()).
		Int("records", len(res.Data)).
		Bool("stored", out.stored).
		Msg("Cold fetch done")

	return res, nil
}

// BackgroundRefresh fetches the collection for filters in the background,
// writes it to the cache and then calls onUpdate once with the fresh data.
// It returns immediately. Failed fetches, and Partial ones when StorePartial
// is off, are dropped without calling onUpdate. onUpdate may be nil.
func (s *Synchronizer) BackgroundRefresh(filters cache.Filters, onUpdate UpdateFunc) {
	refreshID := ulid.Make().String()
	logger := s.logger.With().
		Str("refresh_id", refreshID).
		Stringer("filters", filters).
		Logger()

	s.wg.Add(1)
	BackgroundRefreshesInFlight.Inc()

	go func() {
		defer s.wg.Done()
		defer BackgroundRefreshesInFlight.Dec()

		start := time.Now()
		logger.Debug().Msg("Background refresh started")

		out := s.fetch(context.Background(), filters)

		switch {
		case out.result.Status == pagination.Failed:
			BackgroundRefreshes.WithLabelValues("failed").Inc()
			logger.Warn().Err(out.result.Err).Msg("Background refresh failed")
			return
		case !s.storable(out.result):
			BackgroundRefreshes.WithLabelValues("discarded").Inc()
			logger.Warn().
				Err(out.result.Err).
				Int("records", len(out.result.Items)).
				Msg("Background refresh partial, discarded")
			return
		}

		BackgroundRefreshes.WithLabelValues(out.result.Status.String()).Inc()
		logger.Info().
			Str("status", out.result.Status.String()).
			Int("records", len(out.result.Items)).
			Bool("stored", out.stored).
			Dur("duration", time.Since(start)).
			Msg("Background refresh done")

		if onUpdate != nil {
			onUpdate(out.result.Items)
		}
	}()
}

// Wait blocks until every background refresh started so far has finished.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Clear drops every cached collection.
func (s *Synchronizer) Clear(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// fetch runs the collector for filters and stores its result, collapsing
// concurrent fetches for the same filters into one. The shared fetch runs on
// a detached context bounded by RefreshTimeout; ctx only bounds how long
// this caller waits for it.
func (s *Synchronizer) fetch(ctx context.Context, filters cache.Filters) fetchOutcome {
	ch := s.group.DoChan(filters.Key(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.RefreshTimeout)
		defer cancel()

		out := fetchOutcome{result: s.collector.FetchAll(fetchCtx, filters)}
		if s.storable(out.result) {
			out.stored = s.cache.Set(fetchCtx, out.result.Items, filters)
		}
		return out, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug().Stringer("filters", filters).Msg("Joined in-flight fetch")
		}
		return res.Val.(fetchOutcome)
	case <-ctx.Done():
		return fetchOutcome{result: pagination.Result{
			Items:  []cache.Record{},
			Status: pagination.Failed,
			Err:    ctx.Err(),
		}}
	}
}

// storable reports whether result may be written to the cache.
func (s *Synchronizer) storable(result pagination.Result) bool {
	switch result.Status {
	case pagination.Complete:
		return true
	case pagination.Partial:
		return s.config.StorePartial
	default:
		return false
	}
}

func (s *Synchronizer) transition(filters cache.Filters, from, to State) {
	s.logger.Debug().
		Stringer("filters", filters).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Load state")
}
