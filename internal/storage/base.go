package storage

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/koustreak/imgbed/internal/asset"
	"github.com/koustreak/imgbed/internal/config"
	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/index"
	"github.com/koustreak/imgbed/internal/logger"
	"github.com/koustreak/imgbed/internal/retry"
)

// base holds what both variants share: the index and the index-only
// operations built on it.
type base struct {
	name        string
	scheme      string
	extFallback string
	baseURL     string

	index  *index.Index
	source config.Source
	log    *logger.Logger
	retry  retry.Policy

	bgMu       sync.Mutex
	closing    bool
	background sync.WaitGroup
}

func newBase(name, scheme, extFallback string, ix *index.Index, opts Options) base {
	src := opts.Source
	if src == nil {
		src = config.StaticSource(config.Default())
	}
	return base{
		name:        name,
		scheme:      scheme,
		extFallback: extFallback,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		index:       ix,
		source:      src,
		log:         logger.OrNop(opts.Logger).With().Str("component", "storage").Str("driver", name).Logger(),
		retry:       opts.retryPolicy(),
	}
}

func (b *base) Name() string   { return b.name }
func (b *base) Scheme() string { return b.scheme }

func (b *base) enrich(rec asset.Record) Asset {
	p := asset.PublicPath(b.scheme, rec.ShortID, rec.Ext(b.extFallback))
	return Asset{Record: rec, PublicPath: p, URL: b.baseURL + p}
}

func (b *base) List(ctx context.Context) ([]ListedAsset, error) {
	records, err := b.index.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ListedAsset, 0, len(records))
	for _, r := range records {
		out = append(out, b.enrich(r))
	}
	return out, nil
}

// ResolveShortID also accepts the public name with its extension.
func (b *base) ResolveShortID(ctx context.Context, shortID string) (string, bool, error) {
	id, _ := asset.SplitPublicName(shortID)
	records, err := b.index.Read(ctx)
	if err != nil {
		return "", false, err
	}
	for _, r := range records {
		if r.ShortID == id {
			return r.StorageKey, true, nil
		}
	}
	return "", false, nil
}

func (b *base) Stats(ctx context.Context) (Stats, error) {
	records, err := b.index.Read(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Count: len(records), TotalSizeBytes: asset.TotalSize(records)}, nil
}

func (b *base) Close() error {
	b.drain()
	return nil
}

// drain stops new background work from being tracked and waits for what is
// already running. It is safe to call more than once.
func (b *base) drain() {
	b.bgMu.Lock()
	b.closing = true
	b.bgMu.Unlock()
	b.background.Wait()
}

func (b *base) closed() bool {
	b.bgMu.Lock()
	defer b.bgMu.Unlock()
	return b.closing
}

// validate checks the payload against the live upload limit and fills the
// optional fields of in.
func (b *base) validate(in *UploadInput) error {
	if len(in.Data) == 0 {
		return errs.New(errs.ErrKindInvalidInput, "upload is empty")
	}
	if limit := b.source.Full().UploadLimit(); int64(len(in.Data)) > limit {
		return errs.Newf(errs.ErrKindInvalidInput, "upload of %d bytes exceeds the %d byte limit", len(in.Data), limit)
	}
	if strings.TrimSpace(in.Filename) == "" {
		return errs.New(errs.ErrKindInvalidInput, "filename is required")
	}
	if in.MimeType == "" {
		in.MimeType = http.DetectContentType(in.Data)
	}
	if in.DisplayName == "" {
		in.DisplayName = in.Filename
	}
	return nil
}

// matches reports whether identifier names rec by storage key, short id
// (with or without extension) or display name.
func matches(rec asset.Record, identifier string) bool {
	if identifier == "" {
		return false
	}
	if rec.StorageKey == identifier || rec.DisplayName == identifier || rec.ShortID == identifier {
		return true
	}
	id, ext := asset.SplitPublicName(identifier)
	return ext != "" && rec.ShortID == id
}

// find returns the first record matched by identifier.
func find(records []asset.Record, identifier string) (asset.Record, bool) {
	for _, r := range records {
		if matches(r, identifier) {
			return r, true
		}
	}
	return asset.Record{}, false
}

// goBackground runs fn on a tracked goroutine detached from the caller's
// cancellation. Once the driver is closing, fn runs on the caller's goroutine
// instead.
func (b *base) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	b.bgMu.Lock()
	if b.closing {
		b.bgMu.Unlock()
		fn(ctx)
		return
	}
	b.background.Add(1)
	b.bgMu.Unlock()

	go func() {
		defer b.background.Done()
		fn(ctx)
	}()
}
