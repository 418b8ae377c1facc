package main

import (
	"context"
	"fmt"
	"os"

	"github.com/koustreak/imgbed/internal/botapi"
	"github.com/koustreak/imgbed/internal/config"
	"github.com/koustreak/imgbed/internal/database"
	"github.com/koustreak/imgbed/internal/database/mysql"
	"github.com/koustreak/imgbed/internal/database/postgres"
	"github.com/koustreak/imgbed/internal/index"
	"github.com/koustreak/imgbed/internal/logger"
	"github.com/koustreak/imgbed/internal/settings"
	"github.com/koustreak/imgbed/internal/storage"
)

// app holds what every command shares: settings, the logger, the config
// store and, once opened, the index database.
type app struct {
	settings *settings.Settings
	log      *logger.Logger
	store    *config.Store
	db       database.DB
}

func (a *app) init(path string) error {
	s, err := settings.Load(path)
	if err != nil {
		return err
	}
	a.settings = s

	// Logs go to stderr so --json output stays parseable.
	a.log = logger.New(&logger.Config{
		Level:      s.Log.Level,
		Format:     s.Log.Format,
		TimeFormat: "rfc3339",
		Service:    "imgbed",
		Output:     os.Stderr,
	})

	if err := os.MkdirAll(s.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	a.store, err = config.OpenStore(s.ConfigPath, s.ConfigKey, a.log)
	return err
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// indexFor selects the index backend named in settings. SQL backends share
// one pool and create their table on first use.
func (a *app) indexFor(ctx context.Context) (func(string) index.Backend, error) {
	s := a.settings
	switch s.Index.Backend {
	case settings.IndexPostgres, settings.IndexMySQL:
		if a.db == nil {
			db, err := openDB(ctx, s.Index.Backend, s.Index.DSN)
			if err != nil {
				return nil, err
			}
			if err := index.EnsureSchema(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
			a.db = db
		}
		db := a.db
		return func(driver string) index.Backend { return index.NewSQLBackend(db, driver) }, nil
	default:
		return func(driver string) index.Backend { return index.NewFileBackend(s.IndexPath(driver)) }, nil
	}
}

func openDB(ctx context.Context, backend, dsn string) (database.DB, error) {
	if backend == settings.IndexMySQL {
		db, err := mysql.New(ctx, database.DefaultConfig(database.DriverMySQL, dsn))
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	db, err := postgres.New(ctx, database.DefaultConfig(database.DriverPostgres, dsn))
	if err != nil {
		return nil, err
	}
	return db, nil
}

// options builds driver options from settings and the live config. An
// enabled isolation policy supplies the public base URL.
func (a *app) options(ctx context.Context) (storage.Options, error) {
	indexFor, err := a.indexFor(ctx)
	if err != nil {
		return storage.Options{}, err
	}

	base := a.settings.BaseURL
	if u, ok := a.store.Full().Isolation.PublicBaseURL("https"); ok {
		base = u
	}

	return storage.Options{
		BaseURL:    base,
		Source:     a.store,
		DataDir:    a.settings.DataDir,
		IndexFor:   indexFor,
		Logger:     a.log,
		BotOptions: []botapi.Option{botapi.WithAPIBase(a.settings.Relay.APIBase)},
	}, nil
}

func (a *app) manager(ctx context.Context) (*storage.Manager, storage.Options, error) {
	opts, err := a.options(ctx)
	if err != nil {
		return nil, opts, err
	}
	return storage.Initialize(a.store.Full(), opts), opts, nil
}

// withManager runs fn against a freshly initialized manager and closes it
// afterwards, which also waits for background notifications.
func (a *app) withManager(ctx context.Context, fn func(*storage.Manager) error) error {
	m, _, err := a.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
