//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Sternrassler/collection-cache/internal/testutil"
	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/client"
	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/Sternrassler/collection-cache/pkg/pagination"
	"github.com/Sternrassler/collection-cache/pkg/storage"
	"github.com/Sternrassler/collection-cache/pkg/swr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Options {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return &redis.Options{Addr: host + ":" + port.Port()}
}

type stack struct {
	upstream *testutil.MockCollection
	store    *storage.Lazy
	cache    *cache.Cache
	sync     *swr.Synchronizer
}

// newStack wires the full load path against a live Redis.
func newStack(t *testing.T, opts *redis.Options, cacheCfg cache.Config, syncCfg swr.Config) *stack {
	t.Helper()

	upstream := testutil.NewMockCollection(testutil.GenerateItems(30), 10)
	t.Cleanup(upstream.Close)

	c, err := client.New(client.DefaultConfig(upstream.URL(), "collection-cache-integration/1.0"))
	require.NoError(t, err)

	store := storage.NewLazy(storage.RedisOpener(opts, storage.RedisConfig{
		Prefix: "it",
		Expiry: cacheCfg.TTL,
	}), logging.NewLogger("storage"))
	t.Cleanup(func() { _ = store.Close() })

	retry := pagination.DefaultRetryConfig()
	retry.InitialBackoff = 10 * time.Millisecond
	collector := pagination.NewCollector(c, pagination.Config{Retry: retry})

	cc := cache.New(store, cacheCfg)
	return &stack{
		upstream: upstream,
		store:    store,
		cache:    cc,
		sync:     swr.New(cc, collector, syncCfg),
	}
}

func ids(t *testing.T, data []cache.Record) []int {
	t.Helper()

	out := make([]int, 0, len(data))
	for _, rec := range data {
		var item testutil.Item
		require.NoError(t, json.Unmarshal(rec, &item))
		out = append(out, item.ID)
	}
	return out
}

func matchingIDs(items []testutil.Item) []int {
	out := make([]int, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

// TestLoad_ColdThenHit covers miss, foreground fetch, Redis write, hit and
// background refresh with onUpdate.
func TestLoad_ColdThenHit(t *testing.T) {
	opts := setupRedis(t)

	updates := make(chan []cache.Record, 4)
	syncCfg := swr.DefaultConfig()
	syncCfg.OnUpdate = func(_ cache.Filters, data []cache.Record) { updates <- data }

	s := newStack(t, opts, cache.DefaultConfig(), syncCfg)
	ctx := context.Background()
	filters := cache.Filters{Archived: false}
	want := matchingIDs(s.upstream.Matching(false, ""))

	res, err := s.sync.Load(ctx, filters)
	require.NoError(t, err)
	assert.Equal(t, swr.StateColdFetch, res.Path)
	assert.Equal(t, pagination.Complete, res.FetchStatus)
	assert.Equal(t, want, ids(t, res.Data))
	coldRequests := s.upstream.RequestCount()
	assert.Equal(t, 2, coldRequests, "15 matching items at 10 per page")

	res, err = s.sync.Load(ctx, filters)
	require.NoError(t, err)
	assert.Equal(t, swr.StateCacheHit, res.Path)
	assert.Equal(t, want, ids(t, res.Data))

	select {
	case data := <-updates:
		assert.Equal(t, want, ids(t, data))
	case <-time.After(5 * time.Second):
		t.Fatal("onUpdate not called after background refresh")
	}
	s.sync.Wait()
	assert.Equal(t, 2*coldRequests, s.upstream.RequestCount())
}

// TestLoad_RefreshPicksUpChanges checks that a hit serves the old snapshot
// and the next read sees what the refresh wrote.
func TestLoad_RefreshPicksUpChanges(t *testing.T) {
	opts := setupRedis(t)

	s := newStack(t, opts, cache.DefaultConfig(), swr.DefaultConfig())
	ctx := context.Background()
	filters := cache.Filters{Archived: true}

	_, err := s.sync.Load(ctx, filters)
	require.NoError(t, err)

	changed := testutil.GenerateItems(6)
	s.upstream.SetItems(changed)

	res, err := s.sync.Load(ctx, filters)
	require.NoError(t, err)
	assert.Equal(t, swr.StateCacheHit, res.Path)
	assert.Len(t, res.Data, 15, "hit serves the previous snapshot")

	s.sync.Wait()

	data, status, err := s.cache.Validate(ctx, filters)
	require.NoError(t, err)
	assert.Equal(t, cache.Fresh, status)
	assert.Equal(t, matchingIDs(s.upstream.Matching(true, "")), ids(t, data))
}

// TestKeyedMode_SeparateEntries checks that keyed mode keeps one entry per
// filter combination in Redis.
func TestKeyedMode_SeparateEntries(t *testing.T) {
	opts := setupRedis(t)

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Mode = cache.ModeKeyed

	s := newStack(t, opts, cacheCfg, swr.DefaultConfig())
	ctx := context.Background()

	active := cache.Filters{Archived: false}
	archived := cache.Filters{Archived: true}
	search := cache.Filters{Archived: false, Search: "item-01"}

	for _, f := range []cache.Filters{active, archived, search} {
		_, err := s.sync.Load(ctx, f)
		require.NoError(t, err, "cold load %s", f)
	}
	s.sync.Wait()

	for _, f := range []cache.Filters{active, archived, search} {
		data, ok := s.cache.Get(ctx, f)
		require.True(t, ok, "entry for %s should be cached", f)
		assert.Equal(t, matchingIDs(s.upstream.Matching(f.Archived, f.Search)), ids(t, data), "data for %s", f)
	}

	rdb := redis.NewClient(opts)
	defer rdb.Close()

	n, err := rdb.Exists(ctx, "it:"+active.Key(), "it:"+archived.Key(), "it:"+search.Key(), "it:"+cache.IndexKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

// TestSingleSlot_LastWriteWins checks that single-slot mode replaces the
// entry when filters change.
func TestSingleSlot_LastWriteWins(t *testing.T) {
	opts := setupRedis(t)

	s := newStack(t, opts, cache.DefaultConfig(), swr.DefaultConfig())
	ctx := context.Background()

	_, err := s.sync.Load(ctx, cache.Filters{Archived: false})
	require.NoError(t, err)
	_, err = s.sync.Load(ctx, cache.Filters{Archived: true})
	require.NoError(t, err)

	_, ok := s.cache.Get(ctx, cache.Filters{Archived: false})
	assert.False(t, ok, "first filters were replaced in the single slot")

	_, ok = s.cache.Get(ctx, cache.Filters{Archived: true})
	assert.True(t, ok)
}

// TestRedisExpiry checks that Redis drops entries once the cache TTL has
// passed, independently of the reader-side freshness check.
func TestRedisExpiry(t *testing.T) {
	opts := setupRedis(t)

	cacheCfg := cache.DefaultConfig()
	cacheCfg.TTL = time.Second

	s := newStack(t, opts, cacheCfg, swr.DefaultConfig())
	ctx := context.Background()
	filters := cache.Filters{}

	require.True(t, s.cache.Set(ctx, []cache.Record{cache.Record(`{"id":1}`)}, filters))

	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ttl, err := rdb.TTL(ctx, "it:"+cache.SlotKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)

	require.Eventually(t, func() bool {
		n, err := rdb.Exists(ctx, "it:"+cache.SlotKey).Result()
		return err == nil && n == 0
	}, 5*time.Second, 100*time.Millisecond)

	_, status, err := s.cache.Validate(ctx, filters)
	require.NoError(t, err)
	assert.Equal(t, cache.Absent, status)
}

// TestRedisUnavailable checks that an unreachable Redis degrades to network
// loads instead of failing them.
func TestRedisUnavailable(t *testing.T) {
	s := newStack(t, &redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, cache.DefaultConfig(), swr.DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := s.sync.Load(ctx, cache.Filters{})
		require.NoError(t, err)
		assert.Equal(t, swr.StateColdFetch, res.Path)
		assert.Len(t, res.Data, 15)
	}
	assert.Equal(t, 4, s.upstream.RequestCount())
}
