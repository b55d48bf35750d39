package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/Sternrassler/collection-cache/pkg/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultVersion is the schema version written with new entries.
	DefaultVersion = "1"

	// DefaultTTL is how long an entry may be served.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries bounds the number of entries in keyed mode.
	DefaultMaxEntries = 16
)

// Mode selects how entries are laid out in the store.
type Mode string

const (
	// ModeSingleSlot keeps one entry under SlotKey. Writing filters B replaces
	// the entry for filters A, and concurrent writers race: the last Set wins.
	ModeSingleSlot Mode = "single-slot"

	// ModeKeyed keeps one entry per filter combination, bounded by MaxEntries
	// with least-recently-used eviction.
	ModeKeyed Mode = "keyed"
)

// ErrCorruptEntry indicates a stored value could not be decoded.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Config holds cache configuration.
type Config struct {
	// Version is the schema version readers expect and writers stamp.
	Version string

	// TTL is the maximum age of a servable entry.
	TTL time.Duration

	// Mode selects single-slot or keyed layout.
	Mode Mode

	// MaxEntries caps keyed mode. Ignored in single-slot mode.
	MaxEntries int

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Version:    DefaultVersion,
		TTL:        DefaultTTL,
		Mode:       ModeSingleSlot,
		MaxEntries: DefaultMaxEntries,
		Now:        time.Now,
	}
}

// Cache is the filter-scoped, versioned, time-bounded collection cache.
//
// Storage failures never escape Get or Set: they are logged and reported as
// a miss or an unsuccessful write, so callers fall back to the network.
type Cache struct {
	store  storage.Store
	config Config
	logger zerolog.Logger

	// serializes read-modify-write of the keyed-mode index
	indexMu sync.Mutex
}

// New creates a cache on top of store.
func New(store storage.Store, cfg Config) *Cache {
	if store == nil {
		panic("store cannot be nil")
	}

	defaults := DefaultConfig()
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.Mode == "" {
		cfg.Mode = defaults.Mode
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaults.MaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}

	return &Cache{
		store:  store,
		config: cfg,
		logger: logging.NewLogger("cache"),
	}
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.config
}

func (c *Cache) keyFor(filters Filters) string {
	if c.config.Mode == ModeKeyed {
		return filters.Key()
	}
	return SlotKey
}

// Lookup reads the entry that would answer filters and classifies it.
// It never modifies the store. A storage failure is returned as an error
// together with Absent.
func (c *Cache) Lookup(ctx context.Context, filters Filters) (*Entry, Status, error) {
	key := c.keyFor(filters)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Absent, nil
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, Absent, fmt.Errorf("store get: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return nil, Absent, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}

	status := Classify(&entry, filters, c.config.Now(), c.config.Version, c.config.TTL)
	return &entry, status, nil
}

// EvictIfInvalid deletes the entry that answered filters when status says it
// can never be served again (Stale or VersionMismatch). It reports whether a
// delete was issued.
func (c *Cache) EvictIfInvalid(ctx context.Context, filters Filters, status Status) (bool, error) {
	if !status.Evictable() {
		return false, nil
	}

	if err := c.remove(ctx, c.keyFor(filters)); err != nil {
		return false, err
	}

	CacheEvictions.WithLabelValues(status.String()).Inc()
	return true, nil
}

// Validate classifies the entry for filters and evicts it when it is stale
// or was written under another version. Data is returned only on Fresh.
func (c *Cache) Validate(ctx context.Context, filters Filters) ([]Record, Status, error) {
	entry, status, err := c.Lookup(ctx, filters)
	if err != nil {
		if errors.Is(err, ErrCorruptEntry) {
			// Undecodable values are never servable; drop them
			if delErr := c.remove(ctx, c.keyFor(filters)); delErr == nil {
				CacheEvictions.WithLabelValues("corrupt").Inc()
			}
		}
		return nil, Absent, err
	}

	if _, err := c.EvictIfInvalid(ctx, filters, status); err != nil {
		c.logger.Warn().Err(err).Str("status", status.String()).Msg("Cache eviction failed")
	}

	if !status.Hit() {
		return nil, status, nil
	}
	return entry.Data, status, nil
}

// Get returns the cached collection for filters, or (nil, false) on any miss.
func (c *Cache) Get(ctx context.Context, filters Filters) ([]Record, bool) {
	data, status, err := c.Validate(ctx, filters)
	if err != nil {
		cause := "storage_error"
		if errors.Is(err, ErrCorruptEntry) {
			cause = "corrupt"
		}
		CacheMisses.WithLabelValues(cause).Inc()
		c.logger.Warn().Err(err).Stringer("filters", filters).Msg("Cache read failed, treating as miss")
		return nil, false
	}

	if !status.Hit() {
		CacheMisses.WithLabelValues(status.String()).Inc()
		c.logger.Debug().
			Stringer("filters", filters).
			Str("cause", status.String()).
			Msg("Cache miss")
		return nil, false
	}

	if c.config.Mode == ModeKeyed {
		if err := c.touch(ctx, c.keyFor(filters)); err != nil {
			c.logger.Warn().Err(err).Msg("Cache index update failed")
		}
	}

	CacheHits.Inc()
	c.logger.Debug().
		Stringer("filters", filters).
		Int("records", len(data)).
		Msg("Cache hit")

	return data, true
}

// Set replaces the entry for filters with data, stamped with the configured
// version and the current time. In single-slot mode this overwrites whatever
// entry is stored, whatever its filters. It reports whether the write succeeded.
func (c *Cache) Set(ctx context.Context, data []Record, filters Filters) bool {
	if data == nil {
		data = []Record{}
	}

	entry := Entry{
		Version:   c.config.Version,
		Timestamp: c.config.Now(),
		Data:      data,
		Filters:   filters,
	}

	encoded, err := encodeEntry(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Msg("Cache entry encoding failed")
		return false
	}

	key := c.keyFor(filters)
	if err := c.store.Put(ctx, key, encoded); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Stringer("filters", filters).Msg("Cache write failed")
		return false
	}

	CacheEntryBytes.Set(float64(len(encoded)))

	if c.config.Mode == ModeKeyed {
		if err := c.touch(ctx, key); err != nil {
			c.logger.Warn().Err(err).Msg("Cache index update failed")
		}
	}

	c.logger.Debug().
		Stringer("filters", filters).
		Int("records", len(data)).
		Dur("ttl", c.config.TTL).
		Msg("Cached collection")

	return true
}

// Clear deletes every entry the cache owns.
func (c *Cache) Clear(ctx context.Context) error {
	if c.config.Mode != ModeKeyed {
		if err := c.store.Delete(ctx, SlotKey); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			return fmt.Errorf("clear cache: %w", err)
		}
		CacheEvictions.WithLabelValues("clear").Inc()
		return nil
	}

	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	keys, err := c.readIndex(ctx)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			errs = append(errs, err)
			continue
		}
		CacheEvictions.WithLabelValues("clear").Inc()
	}
	if err := c.store.Delete(ctx, IndexKey); err != nil {
		CacheErrors.WithLabelValues("index").Inc()
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// remove deletes key and, in keyed mode, drops it from the index.
func (c *Cache) remove(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("store delete: %w", err)
	}

	if c.config.Mode != ModeKeyed {
		return nil
	}

	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	keys, err := c.readIndex(ctx)
	if err != nil {
		return err
	}
	return c.writeIndex(ctx, removeKey(keys, key))
}

// touch marks key as most recently used and evicts whatever falls past MaxEntries.
func (c *Cache) touch(ctx context.Context, key string) error {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	keys, err := c.readIndex(ctx)
	if err != nil {
		return err
	}

	kept, evicted := trimKeys(touchKey(keys, key), c.config.MaxEntries)
	for _, old := range evicted {
		if err := c.store.Delete(ctx, old); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			// keep it indexed so a later touch retries the delete
			kept = append([]string{old}, kept...)
			continue
		}
		CacheEvictions.WithLabelValues("lru").Inc()
		c.logger.Debug().Str("key", old).Msg("Evicted least recently used entry")
	}

	return c.writeIndex(ctx, kept)
}

func (c *Cache) readIndex(ctx context.Context) ([]string, error) {
	data, err := c.store.Get(ctx, IndexKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		CacheErrors.WithLabelValues("index").Inc()
		return nil, fmt.Errorf("read index: %w", err)
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		// A broken index only loses LRU order; start over
		c.logger.Warn().Err(err).Msg("Cache index corrupt, resetting")
		return nil, nil
	}
	return keys, nil
}

func (c *Cache) writeIndex(ctx context.Context, keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := c.store.Put(ctx, IndexKey, data); err != nil {
		CacheErrors.WithLabelValues("index").Inc()
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
