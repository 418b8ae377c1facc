// Package filestore is the bucket contract behind the object-store driver.
// Providers implement Store; the storage package never imports a provider
// directly.
//
// Usage:
//
//	cfg := filestore.NewConfig("<account>.r2.cloudflarestorage.com", "images", akid, secret)
//	store, err := minio.New(cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	_, err = store.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), filestore.PutOptions{ContentType: "image/png"})
package filestore

import (
	"context"
	"io"
	"time"
)

// Store operates on the single bucket named in Config.
type Store interface {
	// Ping verifies the bucket exists and the credentials may access it.
	Ping(ctx context.Context) error

	Close() error

	// PutObject uploads size bytes from r under key, replacing any object
	// already there.
	PutObject(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (*ObjectInfo, error)

	// RemoveObject deletes key. Removing a missing key is not an error.
	RemoveObject(ctx context.Context, key string) error

	// ListObjects returns objects under opts.Prefix. Without Recursive,
	// common prefixes come back as IsDir entries.
	ListObjects(ctx context.Context, opts ListOptions) ([]ObjectInfo, error)

	// GetObject opens the object at key. The caller must Close it.
	GetObject(ctx context.Context, key string) (Object, error)
}

// ObjectInfo describes one bucket entry.
type ObjectInfo struct {
	Key          string
	Size         int64 // -1 if unknown
	ContentType  string
	LastModified time.Time
	IsDir        bool
}

// Object streams an object's bytes.
type Object interface {
	io.ReadCloser
	Info() *ObjectInfo
}

type ListOptions struct {
	Prefix    string
	Recursive bool
}

// PutOptions carries per-object HTTP metadata served back on GET.
type PutOptions struct {
	ContentType  string
	CacheControl string
}
