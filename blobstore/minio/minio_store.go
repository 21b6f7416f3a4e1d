// Package minio implements blobstore.Store for MinIO and S3-compatible
// object storage, where shared reference databases are typically hosted.
package minio

import (
	"bytes"
	"context"
	"path"

	"github.com/minio/minio-go/v7"
	"golang.org/x/time/rate"

	"github.com/hupe1980/sketchgo/blobstore"
)

// Compile-time check.
var _ blobstore.Store = (*Store)(nil)

// Store implements blobstore.Store over a MinIO/S3 bucket.
type Store struct {
	client  *minio.Client
	bucket  string
	prefix  string
	limiter *rate.Limiter
}

// Option configures a Store.
type Option func(*Store)

// WithRateLimit throttles downloads to the given bytes per second. Useful
// when bulk-fetching reference databases next to latency-sensitive traffic.
func WithRateLimit(bytesPerSecond float64, burst int) Option {
	return func(s *Store) {
		s.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
	}
}

// NewStore creates a blob store on the given bucket. rootPrefix is
// prepended to all keys (e.g. "sketches/").
func NewStore(client *minio.Client, bucket, rootPrefix string, opts ...Option) *Store {
	s := &Store{client: client, bucket: bucket, prefix: rootPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// Open opens an existing blob for reading. Reads are ranged requests
// against the object, so partial loads do not download the whole blob.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return &minioBlob{ctx: ctx, obj: obj, size: info.Size, limiter: s.limiter}, nil
}

// Put writes a blob atomically.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns blob names under prefix, relative to the store root.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.key(prefix)
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    full,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := obj.Key
		if s.prefix != "" {
			name = name[len(s.prefix):]
			for len(name) > 0 && name[0] == '/' {
				name = name[1:]
			}
		}
		names = append(names, name)
	}
	return names, nil
}

type minioBlob struct {
	ctx     context.Context
	obj     *minio.Object
	size    int64
	limiter *rate.Limiter
}

func (b *minioBlob) ReadAt(p []byte, off int64) (int, error) {
	if b.limiter != nil {
		// WaitN rejects requests above the burst, so large reads
		// reserve their budget in burst-sized chunks.
		burst := b.limiter.Burst()
		for remaining := len(p); remaining > 0; remaining -= burst {
			n := min(remaining, burst)
			if err := b.limiter.WaitN(b.ctx, n); err != nil {
				return 0, err
			}
		}
	}
	return b.obj.ReadAt(p, off)
}

func (b *minioBlob) Close() error { return b.obj.Close() }

func (b *minioBlob) Size() int64 { return b.size }
