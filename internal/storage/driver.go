// Package storage defines the uniform driver contract for stored images and
// the two driver variants: the bot-relay driver and the object-store driver.
// A Manager instantiates the configured drivers and resolves them by name.
//
// Usage:
//
//	holder := storage.NewHolder(storage.Initialize(store.Full(), opts), opts)
//
//	d, err := holder.Load().Driver("")
//	if err != nil { ... }
//	res, err := d.Upload(ctx, storage.UploadInput{Data: data, Filename: key, MimeType: "image/png"})
package storage

import (
	"context"
	"time"

	"github.com/koustreak/imgbed/internal/asset"
)

const (
	// ProbeTimeout bounds availability checks.
	ProbeTimeout = 5 * time.Second

	// UploadTimeout bounds each upload or download attempt.
	UploadTimeout = 20 * time.Second
)

// Public path schemes.
const (
	SchemeRelay       = "tg"
	SchemeObjectStore = "r2"
)

// UploadInput is one asset to store.
type UploadInput struct {
	Data []byte

	// Filename is the generated, collision-resistant name (see
	// asset.NewStorageKey). The object-store driver uses it as the key.
	Filename string

	// MimeType is sniffed from Data when empty.
	MimeType string

	// DisplayName is the human-readable original name. Defaults to Filename.
	DisplayName string
}

// Asset is a record enriched with its public path and absolute URL.
type Asset struct {
	asset.Record
	PublicPath string `json:"publicPath"`
	URL        string `json:"url"`
}

// UploadResult is returned by Upload.
type UploadResult = Asset

// ListedAsset is one entry returned by List.
type ListedAsset = Asset

// Content is fetched payload ready to be proxied.
type Content struct {
	Data        []byte
	ContentType string
}

// Stats is derived from the index alone.
type Stats struct {
	Count          int   `json:"count"`
	TotalSizeBytes int64 `json:"totalSizeBytes"`
}

// SyncResult reports a cloud reconciliation.
type SyncResult struct {
	Added   int `json:"added"`
	Scanned int `json:"scanned"`
}

// Driver is the capability set every storage variant implements. All
// methods are safe for concurrent use.
type Driver interface {
	// Name is the variant name used as registry and config key.
	Name() string

	// Scheme is the first element of public paths served by this driver.
	Scheme() string

	// Upload stores in remotely, then indexes it. A corrupt index aborts the
	// upload before any remote write with errs.ErrKindIndexReadFailure.
	Upload(ctx context.Context, in UploadInput) (UploadResult, error)

	// List returns indexed assets, most recent first, without network calls.
	List(ctx context.Context) ([]ListedAsset, error)

	// Delete removes the asset named by identifier (short id, public name or
	// storage key). It reports whether anything was removed.
	Delete(ctx context.Context, identifier string) (bool, error)

	// ResolveShortID maps a short id to its storage key using the index only.
	ResolveShortID(ctx context.Context, shortID string) (storageKey string, ok bool, err error)

	// FetchContent downloads the payload behind storageKey.
	FetchContent(ctx context.Context, storageKey string) (Content, error)

	// Available probes connectivity and credentials. It never fails; any
	// error reads as false.
	Available(ctx context.Context) bool

	// Stats counts indexed assets and their total size.
	Stats(ctx context.Context) (Stats, error)

	// Close waits for in-flight background work such as notifications.
	Close() error
}

// Syncer is implemented by drivers that can rebuild their index from the
// remote listing.
type Syncer interface {
	SyncFromCloud(ctx context.Context) (SyncResult, error)
}
