// Package index is the per-driver metadata index: an ordered,
// most-recent-first list of asset records persisted as one JSON document.
//
// Reads distinguish "empty" from "unreadable" and writes are guarded by a
// circuit breaker, so a transient read failure can never cascade into an
// index truncated to zero records.
//
// Usage:
//
//	ix := index.New(index.NewFileBackend("data/r2-index.json"), log)
//
//	snap := ix.Load(ctx)
//	if snap.Failed() {
//	    return snap.Err // errs.ErrKindIndexReadFailure
//	}
//	err := ix.UpsertFront(ctx, rec)
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/koustreak/imgbed/internal/asset"
	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/logger"
)

// Backend persists the raw index document.
type Backend interface {
	// Load returns the stored document. exists is false when nothing has
	// been stored yet; that is not an error.
	Load(ctx context.Context) (data []byte, exists bool, err error)

	// Store replaces the document.
	Store(ctx context.Context, data []byte) error

	// Name identifies the backend in logs.
	Name() string
}

// Snapshot is the result of one read. A failed snapshot carries Err and must
// never be committed back.
type Snapshot struct {
	Records []asset.Record
	Err     error
}

// Failed reports whether the read failed.
func (s Snapshot) Failed() bool {
	return s.Err != nil
}

// Index guards one driver's document. Read-modify-write cycles through
// UpsertFront and RemoveWhere are serialized within the process.
type Index struct {
	backend Backend
	log     *logger.Logger

	mu   sync.Mutex
	seen bool // a document has been observed or written by this Index
}

// New returns an Index over backend.
func New(backend Backend, log *logger.Logger) *Index {
	return &Index{
		backend: backend,
		log:     logger.OrNop(log).With().Str("component", "index").Str("backend", backend.Name()).Logger(),
	}
}

// Name returns the backend name.
func (ix *Index) Name() string {
	return ix.backend.Name()
}

// Load reads the document.
func (ix *Index) Load(ctx context.Context) Snapshot {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.load(ctx)
}

// Read is Load in (records, error) form.
func (ix *Index) Read(ctx context.Context) ([]asset.Record, error) {
	s := ix.Load(ctx)
	return s.Records, s.Err
}

// Commit writes the records of a successful snapshot. A failed snapshot is
// refused with ErrKindIndexWriteRefused.
func (ix *Index) Commit(ctx context.Context, s Snapshot) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if s.Failed() {
		ix.log.WarnWith("refusing to write index from a failed read", s.Err, nil)
		return errs.Wrap(errs.ErrKindIndexWriteRefused, "refusing to write index from a failed read", s.Err)
	}
	return ix.write(ctx, s.Records)
}

// Write replaces the stored records. An empty write over a non-trivial
// document is refused with ErrKindIndexWriteRefused; use Clear for that.
func (ix *Index) Write(ctx context.Context, records []asset.Record) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.write(ctx, records)
}

// UpsertFront inserts rec at the head, replacing any record with the same
// storage key.
func (ix *Index) UpsertFront(ctx context.Context, rec asset.Record) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := ix.load(ctx)
	if s.Failed() {
		return s.Err
	}

	next := make([]asset.Record, 0, len(s.Records)+1)
	next = append(next, rec)
	for _, r := range s.Records {
		if r.StorageKey != rec.StorageKey {
			next = append(next, r)
		}
	}
	return ix.write(ctx, next)
}

// Update applies fn to the current records and writes what it returns,
// under the same guards as Write. fn must not retain the slice.
func (ix *Index) Update(ctx context.Context, fn func(records []asset.Record) ([]asset.Record, error)) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := ix.load(ctx)
	if s.Failed() {
		return s.Err
	}
	next, err := fn(s.Records)
	if err != nil {
		return err
	}
	return ix.write(ctx, next)
}

// RemoveWhere drops every record matching pred and persists the rest. It
// returns the number of removed records. Besides Clear, it is the only path
// allowed to empty the index: removing the last records of a successfully
// read index skips the circuit breaker.
func (ix *Index) RemoveWhere(ctx context.Context, pred func(asset.Record) bool) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := ix.load(ctx)
	if s.Failed() {
		return 0, s.Err
	}

	kept := make([]asset.Record, 0, len(s.Records))
	for _, r := range s.Records {
		if !pred(r) {
			kept = append(kept, r)
		}
	}
	removed := len(s.Records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if len(kept) == 0 {
		return removed, ix.store(ctx, kept)
	}
	return removed, ix.write(ctx, kept)
}

// Clear empties the index, bypassing the circuit breaker.
func (ix *Index) Clear(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.log.Warn("clearing index")
	return ix.store(ctx, nil)
}

func (ix *Index) load(ctx context.Context) Snapshot {
	data, exists, err := ix.backend.Load(ctx)
	if err != nil {
		ix.log.ErrorWith("index read failed", err, nil)
		return Snapshot{Err: errs.Wrap(errs.ErrKindIndexReadFailure, "failed to read index", err)}
	}
	if !exists {
		if ix.seen {
			ix.log.Error("index document disappeared")
			return Snapshot{Err: errs.New(errs.ErrKindIndexReadFailure, "index document disappeared")}
		}
		return Snapshot{Records: []asset.Record{}}
	}

	records, err := decode(data)
	if err != nil {
		ix.log.ErrorWith("index document is malformed", err, map[string]interface{}{"bytes": len(data)})
		return Snapshot{Err: errs.Wrap(errs.ErrKindIndexReadFailure, "index document is malformed", err)}
	}
	ix.seen = true
	return Snapshot{Records: records}
}

func (ix *Index) write(ctx context.Context, records []asset.Record) error {
	if len(records) == 0 {
		data, exists, err := ix.backend.Load(ctx)
		if err != nil {
			ix.log.WarnWith("refusing empty index write: current document unreadable", err, nil)
			return errs.Wrap(errs.ErrKindIndexWriteRefused, "refusing empty write: current index unreadable", err)
		}
		if exists && nonTrivial(data) {
			ix.log.WarnWith("refusing empty index write over existing records", nil, map[string]interface{}{"bytes": len(data)})
			return errs.New(errs.ErrKindIndexWriteRefused, "refusing to overwrite a populated index with zero records")
		}
	}
	return ix.store(ctx, records)
}

func (ix *Index) store(ctx context.Context, records []asset.Record) error {
	data, err := encode(records)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to encode index", err)
	}
	if err := ix.backend.Store(ctx, data); err != nil {
		ix.log.ErrorWith("index write failed", err, nil)
		var e *errs.Error
		if errors.As(err, &e) {
			return err
		}
		return errs.Wrap(errs.ErrKindBackendRequestFailed, "failed to persist index", err)
	}
	ix.seen = true
	return nil
}

func encode(records []asset.Record) ([]byte, error) {
	if records == nil {
		records = []asset.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decode(data []byte) ([]asset.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("index document is empty")
	}
	if trimmed[0] != '[' {
		return nil, errors.New("index document is not a JSON array")
	}
	var records []asset.Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []asset.Record{}
	}
	return records, nil
}

// nonTrivial reports whether data holds anything besides whitespace or an
// empty JSON array. Undecodable content counts as non-trivial.
func nonTrivial(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return false
	}
	var items []json.RawMessage
	if trimmed[0] == '[' && json.Unmarshal(trimmed, &items) == nil {
		return len(items) > 0
	}
	return true
}
