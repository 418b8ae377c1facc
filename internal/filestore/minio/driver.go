// Package minio implements filestore.Store over minio-go, which speaks the
// S3 protocol R2 exposes.
//
// Usage:
//
//	store, err := minio.New(filestore.NewConfig(endpoint, "images", akid, secret))
//	if err != nil { ... }
//	defer store.Close()
//
//	objects, err := store.ListObjects(ctx, filestore.ListOptions{Recursive: true})
package minio

import (
	"context"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/filestore"
)

// Driver is safe for concurrent use.
type Driver struct {
	client *miniogo.Client
	bucket string
}

// New builds a client for cfg. It does not touch the network; call Ping to
// validate credentials.
func New(cfg *filestore.Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindDriverNotConfigured, "failed to create object store client", err)
	}

	return &Driver{client: client, bucket: cfg.Bucket}, nil
}

func (d *Driver) Ping(ctx context.Context) error {
	ok, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if !ok {
		return errs.Newf(errs.ErrKindBackendUnavailable, "bucket %q does not exist", d.bucket)
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) PutObject(ctx context.Context, key string, r io.Reader, size int64, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	info, err := d.client.PutObject(ctx, d.bucket, key, r, size, miniogo.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	})
	if err != nil {
		return nil, mapError(err, "failed to put object")
	}
	return &filestore.ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  opts.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// RemoveObject treats a missing key as already removed.
func (d *Driver) RemoveObject(ctx context.Context, key string) error {
	err := d.client.RemoveObject(ctx, d.bucket, key, miniogo.RemoveObjectOptions{})
	if e := mapError(err, "failed to remove object"); e != nil && !errs.IsNotFound(e) {
		return e
	}
	return nil
}

func (d *Driver) ListObjects(ctx context.Context, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the SDK's listing goroutine on early return

	var results []filestore.ObjectInfo
	for obj := range d.client.ListObjects(listCtx, d.bucket, miniogo.ListObjectsOptions{
		Prefix:    opts.Prefix,
		Recursive: opts.Recursive,
	}) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list objects")
		}
		results = append(results, toInfo(obj))
	}
	return results, nil
}

// GetObject stats the object up front so a missing key fails here rather
// than on the first Read.
func (d *Driver) GetObject(ctx context.Context, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, d.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, mapError(err, "failed to stat object")
	}
	info := toInfo(stat)
	info.Key = key
	return &object{ReadCloser: obj, info: &info}, nil
}

func toInfo(o miniogo.ObjectInfo) filestore.ObjectInfo {
	return filestore.ObjectInfo{
		Key:          o.Key,
		Size:         o.Size,
		ContentType:  o.ContentType,
		LastModified: o.LastModified,
		IsDir:        strings.HasSuffix(o.Key, "/"),
	}
}

type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
