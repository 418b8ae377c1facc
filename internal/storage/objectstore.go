package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/imgbed/internal/asset"
	"github.com/koustreak/imgbed/internal/botapi"
	"github.com/koustreak/imgbed/internal/config"
	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/filestore"
	"github.com/koustreak/imgbed/internal/filestore/minio"
	"github.com/koustreak/imgbed/internal/index"
	"github.com/koustreak/imgbed/internal/notify"
	"github.com/koustreak/imgbed/internal/retry"
)

// NotifySource labels object-store upload notifications.
const NotifySource = "Cloudflare R2"

// CacheControl is stored with every object so a CDN in front of the public
// domain caches it as immutable.
const CacheControl = "public, max-age=31536000"

// StoreFactory builds a filestore.Store for one bucket.
type StoreFactory func(cfg *filestore.Config) (filestore.Store, error)

// NewMinioStore is the default StoreFactory.
func NewMinioStore(cfg *filestore.Config) (filestore.Store, error) {
	s, err := minio.New(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func storeConfig(cfg config.ObjectStoreConfig) *filestore.Config {
	fc := filestore.NewConfig(cfg.ResolvedEndpoint(), cfg.BucketName, cfg.AccessKeyID, cfg.SecretAccessKey)
	fc.Region = cfg.ResolvedRegion()
	fc.Insecure = !cfg.Secure()
	return fc
}

// ObjectStoreDriver stores assets in an S3-compatible bucket under their
// generated filename.
type ObjectStoreDriver struct {
	base
	newStore   StoreFactory
	botOptions []botapi.Option

	mu          sync.Mutex
	store       filestore.Store
	fingerprint string
}

var (
	_ Driver = (*ObjectStoreDriver)(nil)
	_ Syncer = (*ObjectStoreDriver)(nil)
)

// NewObjectStoreDriver returns the object-store driver over ix.
func NewObjectStoreDriver(ix *index.Index, opts Options) *ObjectStoreDriver {
	f := opts.NewObjectStore
	if f == nil {
		f = NewMinioStore
	}
	return &ObjectStoreDriver{
		base:       newBase(config.DriverR2, SchemeObjectStore, "", ix, opts),
		newStore:   f,
		botOptions: opts.botOptions(),
	}
}

// bucket returns a store for the live credentials, rebuilding it when they
// change.
func (d *ObjectStoreDriver) bucket() (filestore.Store, config.ObjectStoreConfig, error) {
	cfg := d.source.Full().R2
	if !cfg.Configured() {
		return nil, cfg, errs.New(errs.ErrKindDriverNotConfigured, "object store requires an account or endpoint, access keys and a bucket")
	}
	fc := storeConfig(cfg)
	fp := fc.Fingerprint()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed() {
		return nil, cfg, errs.New(errs.ErrKindBackendUnavailable, "object store driver is closed")
	}
	if d.store != nil && d.fingerprint == fp {
		return d.store, cfg, nil
	}
	s, err := d.newStore(fc)
	if err != nil {
		return nil, cfg, err
	}
	if d.store != nil {
		_ = d.store.Close()
		d.log.Info("object store credentials changed, client rebuilt")
	}
	d.store, d.fingerprint = s, fp
	return s, cfg, nil
}

// attempt runs op with UploadTimeout per attempt under the retry policy.
func (d *ObjectStoreDriver) attempt(ctx context.Context, what string, op func(ctx context.Context) error) error {
	return retry.Do(ctx, d.retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, UploadTimeout)
		defer cancel()
		return retry.Classify(op(attemptCtx))
	}, func(err error, wait time.Duration) {
		d.log.WarnWith(what+" failed, retrying", err, map[string]interface{}{"wait": wait.String()})
	})
}

// Upload writes the object, indexes it under a random short id and sends a
// best-effort notification in the background.
func (d *ObjectStoreDriver) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	if err := d.validate(&in); err != nil {
		return UploadResult{}, err
	}
	store, cfg, err := d.bucket()
	if err != nil {
		return UploadResult{}, err
	}
	if snap := d.index.Load(ctx); snap.Failed() {
		return UploadResult{}, snap.Err
	}

	key := strings.TrimLeft(in.Filename, "/")
	err = d.attempt(ctx, "put object", func(ctx context.Context) error {
		_, err := store.PutObject(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), filestore.PutOptions{ContentType: in.MimeType, CacheControl: CacheControl})
		return err
	})
	if err != nil {
		d.log.ErrorWith("object upload failed", err, map[string]interface{}{"key": key})
		return UploadResult{}, err
	}

	rec := asset.Record{
		StorageKey:  key,
		DisplayName: in.DisplayName,
		SizeBytes:   int64(len(in.Data)),
		CreatedAt:   time.Now().UTC(),
		DriverName:  d.name,
	}
	err = d.index.Update(ctx, func(records []asset.Record) ([]asset.Record, error) {
		id, err := asset.UniqueShortID("", asset.TakenSet(records))
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindUnknown, "short id allocation failed", err)
		}
		rec.ShortID = id
		return prepend(records, rec), nil
	})
	if err != nil {
		d.log.ErrorWith("object stored but not indexed", err, map[string]interface{}{"key": key})
		return UploadResult{}, err
	}

	res := d.enrich(rec)
	d.log.InfoWith("uploaded", map[string]interface{}{"shortId": rec.ShortID, "key": key, "size": rec.SizeBytes})

	if cfg.Notify.Configured() {
		n := notify.New(botapi.New(cfg.Notify.BotToken, d.botOptions...), cfg.Notify.ChatID, d.log)
		ev := notify.Event{Source: NotifySource, URL: res.URL, DisplayName: in.DisplayName, MimeType: in.MimeType, Data: in.Data}
		d.goBackground(ctx, func(ctx context.Context) {
			// The outcome is logged by the notifier; an upload never depends on it.
			_ = n.Notify(ctx, ev)
		})
	}
	return res, nil
}

// Delete accepts a short id, public name or object key, removes the object
// and then its index entries.
func (d *ObjectStoreDriver) Delete(ctx context.Context, identifier string) (bool, error) {
	records, err := d.index.Read(ctx)
	if err != nil {
		return false, err
	}
	key := identifier
	if rec, ok := find(records, identifier); ok {
		key = rec.StorageKey
	}

	store, _, err := d.bucket()
	if err != nil {
		return false, err
	}
	err = d.attempt(ctx, "remove object", func(ctx context.Context) error {
		return store.RemoveObject(ctx, key)
	})
	if err != nil {
		d.log.ErrorWith("object delete failed", err, map[string]interface{}{"key": key})
		return false, err
	}

	n, err := d.index.RemoveWhere(ctx, func(r asset.Record) bool { return r.StorageKey == key })
	if err != nil {
		return false, err
	}
	d.log.InfoWith("deleted", map[string]interface{}{"key": key, "removed": n})
	return n > 0, nil
}

// FetchContent reads the whole object. The content type falls back to
// sniffing when the bucket has none.
func (d *ObjectStoreDriver) FetchContent(ctx context.Context, storageKey string) (Content, error) {
	store, _, err := d.bucket()
	if err != nil {
		return Content{}, err
	}
	var c Content
	err = d.attempt(ctx, "get object", func(ctx context.Context) error {
		obj, err := store.GetObject(ctx, storageKey)
		if err != nil {
			return err
		}
		defer obj.Close()
		data, err := io.ReadAll(obj)
		if err != nil {
			return errs.Wrap(errs.ErrKindBackendRequestFailed, "failed to read object", err)
		}
		c = Content{Data: data, ContentType: obj.Info().ContentType}
		return nil
	})
	if err != nil {
		return Content{}, err
	}
	if c.ContentType == "" || c.ContentType == "application/octet-stream" {
		c.ContentType = http.DetectContentType(c.Data)
	}
	return c, nil
}

// Available checks that the bucket exists, within ProbeTimeout.
func (d *ObjectStoreDriver) Available(ctx context.Context) bool {
	store, _, err := d.bucket()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		d.log.WarnWith("object store unavailable", err, nil)
		return false
	}
	return true
}

// SyncFromCloud indexes every remote object missing from the index. New
// records are placed newest first ahead of the existing ones.
func (d *ObjectStoreDriver) SyncFromCloud(ctx context.Context) (SyncResult, error) {
	store, _, err := d.bucket()
	if err != nil {
		return SyncResult{}, err
	}
	if snap := d.index.Load(ctx); snap.Failed() {
		return SyncResult{}, snap.Err
	}

	var objects []filestore.ObjectInfo
	err = d.attempt(ctx, "list objects", func(ctx context.Context) error {
		var err error
		objects, err = store.ListObjects(ctx, filestore.ListOptions{Recursive: true})
		return err
	})
	if err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{Scanned: len(objects)}
	err = d.index.Update(ctx, func(records []asset.Record) ([]asset.Record, error) {
		known := make(map[string]struct{}, len(records))
		for _, r := range records {
			known[r.StorageKey] = struct{}{}
		}
		taken := asset.TakenSet(records)
		allocated := map[string]struct{}{}
		isTaken := func(id string) bool {
			_, ok := allocated[id]
			return ok || taken(id)
		}

		var added []asset.Record
		for _, o := range objects {
			if o.IsDir {
				continue
			}
			if _, ok := known[o.Key]; ok {
				continue
			}
			id, err := asset.UniqueShortID("", isTaken)
			if err != nil {
				return nil, errs.Wrap(errs.ErrKindUnknown, "short id allocation failed", err)
			}
			allocated[id] = struct{}{}
			known[o.Key] = struct{}{}

			created := o.LastModified.UTC()
			if o.LastModified.IsZero() {
				created = time.Now().UTC()
			}
			added = append(added, asset.Record{
				StorageKey:  o.Key,
				ShortID:     id,
				DisplayName: asset.DisplayNameFromKey(o.Key),
				SizeBytes:   max(o.Size, 0),
				CreatedAt:   created,
				DriverName:  d.name,
			})
		}
		if len(added) == 0 {
			return nil, errNothingToSync
		}
		sort.SliceStable(added, func(i, j int) bool { return added[i].CreatedAt.After(added[j].CreatedAt) })
		res.Added = len(added)
		return append(added, records...), nil
	})
	if errors.Is(err, errNothingToSync) {
		err = nil
	}
	if err != nil {
		return SyncResult{}, err
	}
	d.log.InfoWith("synced from cloud", map[string]interface{}{"scanned": res.Scanned, "added": res.Added})
	return res, nil
}

// Close waits for notifications and releases the bucket client.
func (d *ObjectStoreDriver) Close() error {
	d.drain()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store, d.fingerprint = nil, ""
	return err
}

// errNothingToSync aborts an index update that would change nothing.
var errNothingToSync = errors.New("nothing to sync")
