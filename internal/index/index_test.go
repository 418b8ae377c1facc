package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/imgbed/internal/asset"
	"github.com/koustreak/imgbed/internal/database"
	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/logger"
)

func rec(key, short string, size int64) asset.Record {
	return asset.Record{
		StorageKey:  key,
		ShortID:     short,
		DisplayName: key,
		SizeBytes:   size,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DriverName:  "r2",
	}
}

func newFileIndex(t *testing.T) (*Index, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "r2-index.json")
	return New(NewFileBackend(path), logger.Nop()), path
}

func TestIndex_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ix, _ := newFileIndex(t)

	records := []asset.Record{rec("c.png", "cccccccc", 3), rec("b.png", "bbbbbbbb", 2), rec("a.png", "aaaaaaaa", 1)}
	require.NoError(t, ix.Write(ctx, records))

	got, err := ix.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestIndex_MissingDocumentIsEmptyOnFirstRead(t *testing.T) {
	ix, _ := newFileIndex(t)

	snap := ix.Load(context.Background())
	require.False(t, snap.Failed())
	assert.Empty(t, snap.Records)
	assert.NotNil(t, snap.Records)
}

func TestIndex_MissingDocumentAfterSeenIsFailure(t *testing.T) {
	ctx := context.Background()
	ix, path := newFileIndex(t)
	require.NoError(t, ix.Write(ctx, []asset.Record{rec("a.png", "aaaaaaaa", 1)}))
	require.NoError(t, os.Remove(path))

	_, err := ix.Read(ctx)
	assert.True(t, errs.IsIndexReadFailure(err))
}

func TestIndex_CircuitBreaker(t *testing.T) {
	ctx := context.Background()
	ix, path := newFileIndex(t)
	require.NoError(t, ix.Write(ctx, []asset.Record{rec("a.png", "aaaaaaaa", 1), rec("b.png", "bbbbbbbb", 2)}))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = ix.Write(ctx, []asset.Record{})
	assert.True(t, errs.IsIndexWriteRefused(err))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIndex_EmptyWriteAllowedOverTrivialDocument(t *testing.T) {
	ctx := context.Background()

	for _, body := range []string{"[]", " [ ]\n", "\n"} {
		t.Run(fmt.Sprintf("%q", body), func(t *testing.T) {
			ix, path := newFileIndex(t)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			assert.NoError(t, ix.Write(ctx, nil))
		})
	}

	ix, _ := newFileIndex(t)
	assert.NoError(t, ix.Write(ctx, nil), "missing document")
}

func TestIndex_CorruptDocument(t *testing.T) {
	ctx := context.Background()

	for _, body := range []string{`[{"storageKey": "a.png", `, `{"storageKey": "a"}`, `null`, ``} {
		t.Run(fmt.Sprintf("%q", body), func(t *testing.T) {
			ix, path := newFileIndex(t)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			snap := ix.Load(ctx)
			require.True(t, snap.Failed())
			assert.True(t, errs.IsIndexReadFailure(snap.Err))

			assert.True(t, errs.IsIndexWriteRefused(ix.Commit(ctx, snap)))

			err := ix.UpsertFront(ctx, rec("new.png", "nnnnnnnn", 1))
			assert.True(t, errs.IsIndexReadFailure(err))

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, body, string(after), "corrupt document must be left alone")
		})
	}
}

func TestIndex_CommitSuccessfulSnapshot(t *testing.T) {
	ctx := context.Background()
	ix, _ := newFileIndex(t)
	require.NoError(t, ix.Write(ctx, []asset.Record{rec("a.png", "aaaaaaaa", 1)}))

	snap := ix.Load(ctx)
	require.False(t, snap.Failed())
	snap.Records = append(snap.Records, rec("b.png", "bbbbbbbb", 2))
	require.NoError(t, ix.Commit(ctx, snap))

	got, err := ix.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIndex_UpsertFront(t *testing.T) {
	ctx := context.Background()
	ix, _ := newFileIndex(t)

	require.NoError(t, ix.UpsertFront(ctx, rec("a.png", "aaaaaaaa", 1)))
	require.NoError(t, ix.UpsertFront(ctx, rec("b.png", "bbbbbbbb", 2)))
	require.NoError(t, ix.UpsertFront(ctx, rec("a.png", "aaaaaaaa", 10)))

	got, err := ix.Read(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.png", got[0].StorageKey)
	assert.Equal(t, int64(10), got[0].SizeBytes)
	assert.Equal(t, "b.png", got[1].StorageKey)
}

func TestIndex_RemoveWhere(t *testing.T) {
	ctx := context.Background()
	ix, path := newFileIndex(t)
	require.NoError(t, ix.Write(ctx, []asset.Record{rec("a.png", "aaaaaaaa", 1), rec("b.png", "bbbbbbbb", 2)}))

	n, err := ix.RemoveWhere(ctx, func(r asset.Record) bool { return r.ShortID == "missing0" })
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = ix.RemoveWhere(ctx, func(r asset.Record) bool { return r.ShortID == "aaaaaaaa" })
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Deleting the last record is intentional.
	n, err = ix.RemoveWhere(ctx, func(r asset.Record) bool { return r.StorageKey == "b.png" })
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}

func TestIndex_Clear(t *testing.T) {
	ctx := context.Background()
	ix, _ := newFileIndex(t)
	require.NoError(t, ix.Write(ctx, []asset.Record{rec("a.png", "aaaaaaaa", 1)}))

	require.NoError(t, ix.Clear(ctx))

	got, err := ix.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type failingBackend struct {
	loadErr  error
	storeErr error
}

func (b failingBackend) Load(context.Context) ([]byte, bool, error) { return nil, false, b.loadErr }
func (b failingBackend) Store(context.Context, []byte) error        { return b.storeErr }
func (b failingBackend) Name() string                               { return "failing" }

func TestIndex_BackendErrors(t *testing.T) {
	ctx := context.Background()

	ix := New(failingBackend{loadErr: errors.New("disk on fire")}, logger.Nop())
	_, err := ix.Read(ctx)
	assert.True(t, errs.IsIndexReadFailure(err))
	assert.True(t, errs.IsIndexWriteRefused(ix.Write(ctx, nil)))

	ix = New(failingBackend{storeErr: errors.New("read-only fs")}, logger.Nop())
	err = ix.UpsertFront(ctx, rec("a.png", "aaaaaaaa", 1))
	assert.True(t, errs.IsBackendRequestFailed(err))

	ix = New(failingBackend{storeErr: errs.New(errs.ErrKindTimeout, "slow")}, logger.Nop())
	err = ix.UpsertFront(ctx, rec("a.png", "aaaaaaaa", 1))
	assert.True(t, errs.IsTimeout(err), "typed backend errors pass through")
}

// fakeDB keeps one document per driver and records the SQL it was sent.
type fakeDB struct {
	dialect database.Driver
	docs    map[string]string
	queries []string
}

func newFakeDB(d database.Driver) *fakeDB {
	return &fakeDB{dialect: d, docs: map[string]string{}}
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close()                     {}
func (f *fakeDB) Dialect() database.Driver   { return f.dialect }

func (f *fakeDB) Exec(_ context.Context, q string, args ...any) error {
	f.queries = append(f.queries, q)
	if strings.HasPrefix(strings.TrimSpace(q), "INSERT") {
		f.docs[args[0].(string)] = args[1].(string)
	}
	return nil
}

func (f *fakeDB) QueryRow(_ context.Context, q string, args ...any) database.Row {
	f.queries = append(f.queries, q)
	doc, ok := f.docs[args[0].(string)]
	return fakeRow{doc: doc, ok: ok}
}

type fakeRow struct {
	doc string
	ok  bool
}

func (r fakeRow) Scan(dest ...any) error {
	if !r.ok {
		return errs.New(errs.ErrKindNotFound, "record not found")
	}
	*dest[0].(*string) = r.doc
	return nil
}

func TestSQLBackend(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		dialect database.Driver
		upsert  string
		param   string
	}{
		{database.DriverPostgres, "ON CONFLICT (driver)", "$1"},
		{database.DriverMySQL, "ON DUPLICATE KEY UPDATE", "?"},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			db := newFakeDB(tt.dialect)
			require.NoError(t, EnsureSchema(ctx, db))

			ix := New(NewSQLBackend(db, "telegraph"), logger.Nop())
			assert.Contains(t, ix.Name(), "asset_index/telegraph")

			got, err := ix.Read(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			records := []asset.Record{rec("file-1", "ile00001", 5)}
			require.NoError(t, ix.Write(ctx, records))

			got, err = ix.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, records, got)

			assert.True(t, errs.IsIndexWriteRefused(ix.Write(ctx, nil)))

			joined := strings.Join(db.queries, "\n")
			assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS asset_index")
			assert.Contains(t, joined, tt.upsert)
			assert.Contains(t, joined, "WHERE driver = "+tt.param)
		})
	}
}

func TestIndex_Update(t *testing.T) {
	ctx := context.Background()
	ix := New(NewMemoryBackend("r2"), logger.Nop())
	require.NoError(t, ix.Write(ctx, []asset.Record{rec("a.png", "aaaaaaaa", 1)}))

	err := ix.Update(ctx, func(records []asset.Record) ([]asset.Record, error) {
		return append([]asset.Record{rec("b.png", "bbbbbbbb", 2)}, records...), nil
	})
	require.NoError(t, err)

	got, err := ix.Read(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b.png", got[0].StorageKey)

	boom := errors.New("boom")
	err = ix.Update(ctx, func([]asset.Record) ([]asset.Record, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	err = ix.Update(ctx, func([]asset.Record) ([]asset.Record, error) { return nil, nil })
	assert.True(t, errs.IsIndexWriteRefused(err))
}
