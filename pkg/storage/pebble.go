package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/rs/zerolog"
)

const (
	// SchemaKey marks a directory as a collection-cache store.
	SchemaKey = "collection-cache:schema"

	// SchemaVersion is written under SchemaKey when the store is created.
	SchemaVersion = "1"

	backendPebble = "pebble"
)

// PebbleConfig holds the options for a Pebble-backed store.
type PebbleConfig struct {
	// Path is the database directory. Created if missing.
	Path string

	// InMemory keeps all data in memory (tests).
	InMemory bool

	// Logger receives pebble's own messages (default: the "storage" component logger).
	Logger *zerolog.Logger
}

// pebbleLogger routes pebble's printf-style logging into zerolog.
// Pebble's info messages are routine (WAL and manifest housekeeping) and are
// logged at debug.
type pebbleLogger struct {
	logger zerolog.Logger
}

func (l pebbleLogger) Infof(format string, args ...any) {
	l.logger.Debug().Str("source", "pebble").Msgf(format, args...)
}

func (l pebbleLogger) Errorf(format string, args ...any) {
	l.logger.Error().Str("source", "pebble").Msgf(format, args...)
}

func (l pebbleLogger) Fatalf(format string, args ...any) {
	l.logger.Fatal().Str("source", "pebble").Msgf(format, args...)
}

// PebbleStore is a Store on top of a local PebbleDB directory.
//
// Operations hold a read lock so Close never runs under an in-flight read or
// write; pebble panics on use of a closed DB.
type PebbleStore struct {
	db *pebble.DB

	mu     sync.RWMutex
	closed bool
}

// OpenPebble opens (creating if needed) a Pebble store.
func OpenPebble(cfg PebbleConfig) (*PebbleStore, error) {
	path := cfg.Path

	logger := logging.NewLogger("storage")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	opts := &pebble.Options{Logger: pebbleLogger{logger: logger}}
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
		if path == "" {
			path = "collection-cache"
		}
	} else if path == "" {
		return nil, fmt.Errorf("pebble path is required")
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		StorageErrors.WithLabelValues("open", backendPebble).Inc()
		return nil, fmt.Errorf("failed to open PebbleDB: %w", err)
	}

	// Write the schema marker on first creation
	if _, closer, err := db.Get([]byte(SchemaKey)); errors.Is(err, pebble.ErrNotFound) {
		if err := db.Set([]byte(SchemaKey), []byte(SchemaVersion), pebble.Sync); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to write schema marker: %w", err)
		}
	} else if err == nil {
		closer.Close()
	} else {
		db.Close()
		return nil, fmt.Errorf("failed to check schema marker: %w", err)
	}

	return &PebbleStore{db: db}, nil
}

// PebbleOpener returns an Opener for use with NewLazy.
func PebbleOpener(cfg PebbleConfig) Opener {
	return func(ctx context.Context) (Store, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return OpenPebble(cfg)
	}
}

// Get returns a copy of the value stored under key.
func (p *PebbleStore) Get(ctx context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		StorageErrors.WithLabelValues("get", backendPebble).Inc()
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	// value is only valid until closer.Close
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put stores value under key with a synced write.
func (p *PebbleStore) Put(ctx context.Context, key string, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.db.Set([]byte(key), value, pebble.Sync); err != nil {
		StorageErrors.WithLabelValues("put", backendPebble).Inc()
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// Delete removes key with a synced write.
func (p *PebbleStore) Delete(ctx context.Context, key string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		StorageErrors.WithLabelValues("delete", backendPebble).Inc()
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

// Close closes the database. Closing twice is a no-op.
func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
