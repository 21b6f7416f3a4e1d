package blobstore

import (
	"context"
	"errors"
)

// Compile-time check.
var _ Store = (*CachingStore)(nil)

// CachingStore fronts a remote Store with a local one. Reference databases
// are downloaded once and reopened from disk afterwards; index blobs are
// immutable, so a cached copy never goes stale except through Put/Delete on
// this same store, which invalidate it.
type CachingStore struct {
	remote Store
	local  Store
}

// NewCachingStore creates a CachingStore over remote, caching into local.
func NewCachingStore(remote, local Store) *CachingStore {
	return &CachingStore{remote: remote, local: local}
}

// Open returns the cached blob when present, otherwise downloads it into
// the cache and opens the local copy.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.local.Open(ctx, name)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	data, err := ReadAll(ctx, s.remote, name)
	if err != nil {
		return nil, err
	}
	if err := s.local.Put(ctx, name, data); err != nil {
		return nil, err
	}
	return s.local.Open(ctx, name)
}

// Put writes through to the remote and refreshes the cache.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.remote.Put(ctx, name, data); err != nil {
		return err
	}
	return s.local.Put(ctx, name, data)
}

// Delete removes the blob from both stores.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	if err := s.remote.Delete(ctx, name); err != nil {
		return err
	}
	return s.local.Delete(ctx, name)
}

// List lists the remote store: the cache may hold only a subset.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.remote.List(ctx, prefix)
}
