package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/koustreak/imgbed/internal/config"
	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/filestore"
	"github.com/koustreak/imgbed/internal/retry"
)

// memStore is an in-memory filestore.Store.
type memStore struct {
	mu      sync.Mutex
	objects map[string]filestore.ObjectInfo
	data    map[string][]byte

	putErrs  []error // consumed one per PutObject call before succeeding
	puts     int
	lastPut  filestore.PutOptions
	removes  []string
	pingErr  error
	closed   bool
	listErrs []error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]filestore.ObjectInfo{}, data: map[string][]byte{}}
}

func (s *memStore) factory() StoreFactory {
	return func(*filestore.Config) (filestore.Store, error) { return s, nil }
}

func (s *memStore) seed(key string, data []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = filestore.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: modified}
	s.data[key] = data
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) PutObject(_ context.Context, key string, r io.Reader, size int64, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.lastPut = opts
	if len(s.putErrs) > 0 {
		err := s.putErrs[0]
		s.putErrs = s.putErrs[1:]
		return nil, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	info := filestore.ObjectInfo{Key: key, Size: size, ContentType: opts.ContentType, LastModified: time.Now()}
	s.objects[key] = info
	s.data[key] = body
	return &info, nil
}

func (s *memStore) RemoveObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes = append(s.removes, key)
	delete(s.objects, key)
	delete(s.data, key)
	return nil
}

func (s *memStore) ListObjects(_ context.Context, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listErrs) > 0 {
		err := s.listErrs[0]
		s.listErrs = s.listErrs[1:]
		return nil, err
	}
	var out []filestore.ObjectInfo
	for k, o := range s.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStore) GetObject(_ context.Context, key string) (filestore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.objects[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key")
	}
	return &memObject{Reader: bytes.NewReader(s.data[key]), info: info}, nil
}

type memObject struct {
	*bytes.Reader
	info filestore.ObjectInfo
}

func (o *memObject) Close() error                 { return nil }
func (o *memObject) Info() *filestore.ObjectInfo { return &o.info }

// stubDriver serves fixed stats.
type stubDriver struct {
	mock.Mock
	name string
}

func newStubDriver(name string) *stubDriver { return &stubDriver{name: name} }

func (d *stubDriver) Name() string   { return d.name }
func (d *stubDriver) Scheme() string { return d.name }

func (d *stubDriver) Upload(context.Context, UploadInput) (UploadResult, error) {
	return UploadResult{}, errs.New(errs.ErrKindUnknown, "not implemented")
}

func (d *stubDriver) List(context.Context) ([]ListedAsset, error) { return nil, nil }

func (d *stubDriver) Delete(context.Context, string) (bool, error) { return false, nil }

func (d *stubDriver) ResolveShortID(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (d *stubDriver) FetchContent(context.Context, string) (Content, error) {
	return Content{}, errs.New(errs.ErrKindNotFound, "no content")
}

func (d *stubDriver) Available(context.Context) bool {
	return d.Called().Bool(0)
}

func (d *stubDriver) Stats(context.Context) (Stats, error) {
	args := d.Called()
	return args.Get(0).(Stats), args.Error(1)
}

func (d *stubDriver) Close() error { return nil }

func fastRetry() *retry.Policy {
	return &retry.Policy{MaxRetries: 2, Step: time.Millisecond}
}

func boolPtr(v bool) *bool { return &v }

func r2Config() config.GlobalConfig {
	cfg := config.Default()
	cfg.DefaultStorage = config.DriverR2
	cfg.R2 = config.ObjectStoreConfig{
		Enabled:         true,
		AccountID:       "acc",
		AccessKeyID:     "AKID",
		SecretAccessKey: "secret",
		BucketName:      "images",
		UseSSL:          boolPtr(true),
	}
	return cfg
}
