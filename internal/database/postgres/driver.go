// Package postgres implements database.DB on a pgx connection pool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/imgbed/internal/database"
	"github.com/koustreak/imgbed/internal/errs"
)

// Driver is safe for concurrent use.
type Driver struct {
	pool *pgxpool.Pool
}

// New opens the pool and pings it; a database that cannot be reached is
// reported here rather than on the first index read.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigUnavailable, "invalid postgres DSN", err)
	}
	applyPool(poolCfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}

	d := &Driver{pool: pool}
	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

func applyPool(p *pgxpool.Config, cfg *database.Config) {
	if cfg.MaxConns > 0 {
		p.MaxConns = cfg.MaxConns
	}
	p.MinConns = cfg.MinConns
	p.MaxConnLifetime = cfg.MaxConnLifetime
	p.MaxConnIdleTime = cfg.MaxConnIdleTime
	p.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	if cfg.ApplicationName != "" {
		if _, set := p.ConnConfig.RuntimeParams["application_name"]; !set {
			p.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
		}
	}
}

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	d.pool.Close()
}

func (d *Driver) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := d.pool.Exec(ctx, sql, args...); err != nil {
		return mapError(err, "exec failed")
	}
	return nil
}

func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return row{d.pool.QueryRow(ctx, sql, args...)}
}

func (d *Driver) Dialect() database.Driver {
	return database.DriverPostgres
}

// row maps pgx.ErrNoRows to errs.ErrKindNotFound on Scan.
type row struct {
	pgx.Row
}

func (r row) Scan(dest ...any) error {
	if err := r.Row.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}
