// Package storage provides the key-value persistence used by the collection cache.
//
// A Store holds opaque values by key. Two backends are provided: a Pebble
// directory on local disk (the default, survives process restarts) and Redis
// (shared between processes). Lazy wraps either one so the underlying store is
// opened on first use and reused afterwards.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested key does not exist in the store.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable indicates the store could not be opened or reached.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrClosed is returned by operations on a store after Close.
	ErrClosed = errors.New("storage closed")
)

// Store is a durable key-value store.
// Every operation may fail; failures are reported, never retried.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying handle.
	Close() error
}
