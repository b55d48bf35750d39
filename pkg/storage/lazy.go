package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Opener creates the underlying store. It runs at most once per successful open.
type Opener func(ctx context.Context) (Store, error)

// Lazy opens its backing store on first use and shares the handle afterwards.
//
// Concurrent first callers are serialized behind a mutex, so the opener never
// runs twice for the same Lazy. A failed open is not remembered: the error is
// returned wrapped in ErrUnavailable and the next call tries again.
type Lazy struct {
	open   Opener
	logger zerolog.Logger

	// current is nil until the first successful open and again after Close
	current atomic.Pointer[openedStore]
	mu      sync.Mutex
	closed  bool
}

type openedStore struct {
	store Store
}

// NewLazy creates a lazily opened store.
func NewLazy(open Opener, logger zerolog.Logger) *Lazy {
	if open == nil {
		panic("opener cannot be nil")
	}
	return &Lazy{
		open:   open,
		logger: logger,
	}
}

// Open returns the shared store, opening it if this is the first successful call.
func (l *Lazy) Open(ctx context.Context) (Store, error) {
	if opened := l.current.Load(); opened != nil {
		return opened.store, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if opened := l.current.Load(); opened != nil {
		return opened.store, nil
	}
	if l.closed {
		return nil, ErrClosed
	}

	store, err := l.open(ctx)
	if err != nil {
		StorageOpens.WithLabelValues("error").Inc()
		l.logger.Warn().Err(err).Msg("Storage open failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	l.current.Store(&openedStore{store: store})
	StorageOpens.WithLabelValues("ok").Inc()
	l.logger.Debug().Msg("Storage opened")

	return store, nil
}

// Get opens the store if needed and reads key.
func (l *Lazy) Get(ctx context.Context, key string) ([]byte, error) {
	store, err := l.Open(ctx)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, key)
}

// Put opens the store if needed and writes key.
func (l *Lazy) Put(ctx context.Context, key string, value []byte) error {
	store, err := l.Open(ctx)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, value)
}

// Delete opens the store if needed and removes key.
func (l *Lazy) Delete(ctx context.Context, key string) error {
	store, err := l.Open(ctx)
	if err != nil {
		return err
	}
	return store.Delete(ctx, key)
}

// Close closes the underlying store if it was ever opened.
// Later calls to Open, Get, Put and Delete return ErrClosed.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	opened := l.current.Swap(nil)
	if opened == nil {
		return nil
	}
	return opened.store.Close()
}
