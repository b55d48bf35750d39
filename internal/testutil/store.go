package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/collection-cache/pkg/storage"
)

// ErrStoreDown is returned by FailingStore operations.
var ErrStoreDown = errors.New("store down")

// FailingStore is a storage.Store whose operations all fail.
type FailingStore struct{}

func (FailingStore) Get(context.Context, string) ([]byte, error) { return nil, ErrStoreDown }
func (FailingStore) Put(context.Context, string, []byte) error { return ErrStoreDown }
func (FailingStore) Delete(context.Context, string) error { return ErrStoreDown }
func (FailingStore) Close() error { return nil }

// RecordingStore wraps a store and counts operations per kind.
type RecordingStore struct {
	storage.Store

	mu      sync.Mutex
	gets    int
	puts    int
	deletes int
}

// NewRecordingStore wraps inner.
func NewRecordingStore(inner storage.Store) *RecordingStore {
	return &RecordingStore{Store: inner}
}

func (r *RecordingStore) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()
	return r.Store.Get(ctx, key)
}

func (r *RecordingStore) Put(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	r.puts++
	r.mu.Unlock()
	return r.Store.Put(ctx, key, value)
}

func (r *RecordingStore) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	r.deletes++
	r.mu.Unlock()
	return r.Store.Delete(ctx, key)
}

// Counts returns the number of gets, puts and deletes seen so far.
func (r *RecordingStore) Counts() (gets, puts, deletes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets, r.puts, r.deletes
}
