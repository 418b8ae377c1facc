package storage

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/koustreak/imgbed/internal/botapi"
	"github.com/koustreak/imgbed/internal/config"
	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/index"
	"github.com/koustreak/imgbed/internal/logger"
	"github.com/koustreak/imgbed/internal/retry"
)

// Options carries what drivers need beyond their config section.
type Options struct {
	// BaseURL prefixes public paths to build absolute URLs.
	BaseURL string

	// Source supplies live credentials. Nil pins the config given to
	// Initialize.
	Source config.Source

	// DataDir holds "<driver>-index.json" files when IndexFor is nil.
	DataDir string

	// IndexFor picks the index backend per driver name.
	IndexFor func(driver string) index.Backend

	Logger     *logger.Logger
	HTTPClient *http.Client

	// BotOptions are applied to every bot client, after the defaults.
	BotOptions []botapi.Option

	// NewObjectStore overrides the bucket client factory.
	NewObjectStore StoreFactory

	// Retry overrides retry.Default for remote calls.
	Retry *retry.Policy
}

func (o Options) retryPolicy() retry.Policy {
	if o.Retry != nil {
		return *o.Retry
	}
	return retry.Default()
}

func (o Options) botOptions() []botapi.Option {
	var out []botapi.Option
	if o.HTTPClient != nil {
		out = append(out, botapi.WithHTTPClient(o.HTTPClient))
	}
	return append(out, o.BotOptions...)
}

func (o Options) backend(driver string) index.Backend {
	if o.IndexFor != nil {
		return o.IndexFor(driver)
	}
	return index.NewFileBackend(filepath.Join(o.DataDir, driver+"-index.json"))
}

// DriverStats is one driver's share of AggregateStats.
type DriverStats struct {
	Count     int   `json:"count"`
	SizeBytes int64 `json:"sizeBytes"`
}

// AggregateStats sums Stats over every registered driver. A driver whose
// Stats failed contributes zeros and is listed in Failures.
type AggregateStats struct {
	TotalCount     int                     `json:"totalCount"`
	TotalSizeBytes int64                   `json:"totalSizeBytes"`
	PerDriver      map[string]DriverStats  `json:"perDriver"`
	Failures       map[string]errs.Failure `json:"failures,omitempty"`
}

// Manager is a registry of drivers with a default. It is safe for concurrent
// use.
type Manager struct {
	log *logger.Logger

	mu          sync.RWMutex
	drivers     map[string]Driver
	order       []string
	defaultName string
}

// NewManager returns an empty registry.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		log:     logger.OrNop(log).Component("storage.manager"),
		drivers: make(map[string]Driver),
	}
}

// Initialize registers every known driver that is enabled and has its
// required credentials. Others are skipped with a warning.
func Initialize(cfg config.GlobalConfig, opts Options) *Manager {
	if opts.Source == nil {
		opts.Source = config.StaticSource(cfg)
	}
	m := NewManager(opts.Logger)

	for _, name := range config.KnownDrivers() {
		fields := map[string]interface{}{"driver": name}
		enabled, configured := sectionState(cfg, name)
		switch {
		case !enabled:
			m.log.InfoWith("driver disabled, skipping", fields)
			continue
		case !configured:
			m.log.WarnWith("driver enabled but missing credentials, skipping", nil, fields)
			continue
		}

		d, err := newDriver(name, index.New(opts.backend(name), opts.Logger), opts)
		if err != nil {
			m.log.WarnWith("driver construction failed, skipping", err, fields)
			continue
		}
		m.Register(d)
	}

	m.mu.Lock()
	m.defaultName = cfg.DefaultStorage
	m.mu.Unlock()

	if len(m.Names()) == 0 {
		m.log.Warn("no storage drivers registered")
	} else {
		m.log.InfoWith("storage ready", map[string]interface{}{"drivers": m.Names(), "default": m.Default()})
	}
	return m
}

func sectionState(cfg config.GlobalConfig, name string) (enabled, configured bool) {
	switch name {
	case config.DriverTelegraph:
		return cfg.Telegraph.Enabled, cfg.Telegraph.Configured()
	case config.DriverR2:
		return cfg.R2.Enabled, cfg.R2.Configured()
	}
	return false, false
}

func newDriver(name string, ix *index.Index, opts Options) (Driver, error) {
	switch name {
	case config.DriverTelegraph:
		return NewRelayDriver(ix, opts), nil
	case config.DriverR2:
		d := NewObjectStoreDriver(ix, opts)
		if _, _, err := d.bucket(); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, errs.Newf(errs.ErrKindConfigUnavailable, "unknown driver %q", name)
}

// Register adds d, replacing a driver of the same name.
func (m *Manager) Register(d Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[d.Name()]; !ok {
		m.order = append(m.order, d.Name())
	}
	m.drivers[d.Name()] = d
	m.log.InfoWith("driver registered", map[string]interface{}{"driver": d.Name()})
}

// SetDefault changes the configured default. The driver need not be
// registered; lookups fall back as described on Driver.
func (m *Manager) SetDefault(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultName = name
}

// Driver returns the named driver, else the default, else the first
// registered one. An empty registry yields errs.ErrKindDriverNotConfigured.
func (m *Manager) Driver(name string) (Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if d, ok := m.drivers[name]; ok {
		return d, nil
	}
	if d, ok := m.drivers[m.defaultName]; ok {
		if name != "" {
			m.log.WarnWith("driver not registered, using default", nil, map[string]interface{}{"requested": name, "default": m.defaultName})
		}
		return d, nil
	}
	if len(m.order) > 0 {
		return m.drivers[m.order[0]], nil
	}
	return nil, errs.New(errs.ErrKindDriverNotConfigured, "no drivers available")
}

// Names lists registered drivers in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Default returns the name Driver("") resolves to, or "" when empty.
func (m *Manager) Default() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.drivers[m.defaultName]; ok {
		return m.defaultName
	}
	if len(m.order) > 0 {
		return m.order[0]
	}
	return ""
}

// Available probes a registered driver. Unknown names are unavailable.
func (m *Manager) Available(ctx context.Context, name string) bool {
	m.mu.RLock()
	d, ok := m.drivers[name]
	m.mu.RUnlock()
	return ok && d.Available(ctx)
}

// AggregateStats collects Stats from every driver.
func (m *Manager) AggregateStats(ctx context.Context) AggregateStats {
	out := AggregateStats{PerDriver: map[string]DriverStats{}}
	for _, name := range m.Names() {
		d, err := m.Driver(name)
		if err != nil {
			continue
		}
		s, err := d.Stats(ctx)
		if err != nil {
			m.log.WarnWith("driver stats failed", err, map[string]interface{}{"driver": name})
			if out.Failures == nil {
				out.Failures = map[string]errs.Failure{}
			}
			out.Failures[name] = errs.Describe(err)
			out.PerDriver[name] = DriverStats{}
			continue
		}
		out.PerDriver[name] = DriverStats{Count: s.Count, SizeBytes: s.TotalSizeBytes}
		out.TotalCount += s.Count
		out.TotalSizeBytes += s.TotalSizeBytes
	}
	return out
}

// Close closes every driver, waiting for their background work.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first error
	for _, name := range m.order {
		if err := m.drivers[name].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Probe tests cfg's section for name without saving it or touching any
// persistent index.
func Probe(ctx context.Context, name string, cfg config.GlobalConfig, opts Options) bool {
	opts.Source = config.StaticSource(cfg)
	if _, configured := sectionState(cfg, name); !configured {
		return false
	}
	d, err := newDriver(name, index.New(index.NewMemoryBackend(name), opts.Logger), opts)
	if err != nil {
		logger.OrNop(opts.Logger).WarnWith("probe driver construction failed", err, map[string]interface{}{"driver": name})
		return false
	}
	defer d.Close()
	return d.Available(ctx)
}
