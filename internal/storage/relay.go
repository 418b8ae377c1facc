package storage

import (
	"context"
	"time"

	"github.com/koustreak/imgbed/internal/asset"
	"github.com/koustreak/imgbed/internal/botapi"
	"github.com/koustreak/imgbed/internal/config"
	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/index"
)

// RelayDriver stores assets as documents posted to a bot chat. The bot API
// file id is the storage key. The transport cannot delete, so Delete only
// forgets the index entry.
type RelayDriver struct {
	base
	botOptions []botapi.Option
}

var _ Driver = (*RelayDriver)(nil)

// NewRelayDriver returns the relay driver over ix. Credentials are read from
// opts.Source on every remote call.
func NewRelayDriver(ix *index.Index, opts Options) *RelayDriver {
	return &RelayDriver{
		base:       newBase(config.DriverTelegraph, SchemeRelay, ".jpg", ix, opts),
		botOptions: opts.botOptions(),
	}
}

// client builds a bot client from the live credentials.
func (d *RelayDriver) client() (*botapi.Client, config.RelayConfig, error) {
	cfg := d.source.Full().Telegraph
	if !cfg.Configured() {
		return nil, cfg, errs.New(errs.ErrKindDriverNotConfigured, "relay driver requires botToken and chatId")
	}
	opts := []botapi.Option{
		botapi.WithLogger(d.log),
		botapi.WithRetry(int(d.retry.MaxRetries), d.retry.Step),
		botapi.WithAttemptTimeout(UploadTimeout),
	}
	opts = append(opts, d.botOptions...)
	if cfg.APIBase != "" {
		opts = append(opts, botapi.WithAPIBase(cfg.APIBase))
	}
	return botapi.New(cfg.BotToken, opts...), cfg, nil
}

// Upload posts the payload as a document. The short id is the tail of the
// returned file id when that is free, otherwise random.
func (d *RelayDriver) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	if err := d.validate(&in); err != nil {
		return UploadResult{}, err
	}
	c, cfg, err := d.client()
	if err != nil {
		return UploadResult{}, err
	}

	// Refuse early so a corrupt index is never papered over by a new upload.
	if snap := d.index.Load(ctx); snap.Failed() {
		return UploadResult{}, snap.Err
	}

	msg, err := c.SendDocument(ctx, cfg.ChatID, botapi.Upload{Name: in.Filename, ContentType: in.MimeType, Data: in.Data})
	if err != nil {
		d.log.ErrorWith("relay upload failed", err, map[string]interface{}{"filename": in.Filename})
		return UploadResult{}, err
	}
	doc := msg.Document

	size := doc.FileSize
	if size <= 0 {
		size = int64(len(in.Data))
	}
	rec := asset.Record{
		StorageKey:  doc.FileID,
		DisplayName: in.DisplayName,
		SizeBytes:   size,
		CreatedAt:   time.Now().UTC(),
		DriverName:  d.name,
	}

	err = d.index.Update(ctx, func(records []asset.Record) ([]asset.Record, error) {
		id, err := asset.UniqueShortID(tail(doc.FileID, asset.ShortIDLength), asset.TakenSet(records))
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindUnknown, "short id allocation failed", err)
		}
		rec.ShortID = id
		return prepend(records, rec), nil
	})
	if err != nil {
		d.log.ErrorWith("document sent but not indexed", err, map[string]interface{}{"fileId": doc.FileID})
		return UploadResult{}, err
	}

	res := d.enrich(rec)
	d.log.InfoWith("uploaded", map[string]interface{}{"shortId": rec.ShortID, "size": rec.SizeBytes})
	return res, nil
}

// Delete forgets the first index entry named by identifier. Other entries
// sharing its display name are kept.
func (d *RelayDriver) Delete(ctx context.Context, identifier string) (bool, error) {
	records, err := d.index.Read(ctx)
	if err != nil {
		return false, err
	}
	rec, ok := find(records, identifier)
	if !ok {
		return false, nil
	}
	n, err := d.index.RemoveWhere(ctx, func(r asset.Record) bool { return r.StorageKey == rec.StorageKey })
	if err != nil {
		return false, err
	}
	if n > 0 {
		d.log.InfoWith("removed from index; the relay keeps the document", map[string]interface{}{"shortId": rec.ShortID, "fileId": rec.StorageKey})
	}
	return n > 0, nil
}

// FetchContent resolves the file id to a download path, then downloads it.
func (d *RelayDriver) FetchContent(ctx context.Context, storageKey string) (Content, error) {
	c, _, err := d.client()
	if err != nil {
		return Content{}, err
	}
	f, err := c.GetFile(ctx, storageKey)
	if err != nil {
		return Content{}, err
	}
	data, ct, err := c.Download(ctx, f.FilePath)
	if err != nil {
		return Content{}, err
	}
	return Content{Data: data, ContentType: ct}, nil
}

// Available calls getMe with ProbeTimeout.
func (d *RelayDriver) Available(ctx context.Context) bool {
	c, _, err := d.client()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	if _, err := c.GetMe(ctx); err != nil {
		d.log.WarnWith("relay unavailable", err, nil)
		return false
	}
	return true
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// prepend returns rec followed by records without rec's storage key.
func prepend(records []asset.Record, rec asset.Record) []asset.Record {
	out := make([]asset.Record, 0, len(records)+1)
	out = append(out, rec)
	for _, r := range records {
		if r.StorageKey != rec.StorageKey {
			out = append(out, r)
		}
	}
	return out
}
