// Package mysql implements database.DB on database/sql with the
// go-sql-driver connector.
package mysql

import (
	"context"
	"database/sql"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/imgbed/internal/database"
	"github.com/koustreak/imgbed/internal/errs"
)

// Driver is safe for concurrent use.
type Driver struct {
	db *sql.DB
}

// New opens the pool and pings it within cfg.ConnectTimeout.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	dsn, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigUnavailable, "invalid mysql DSN", err)
	}
	// The index table stores TIMESTAMP columns.
	dsn.ParseTime = true
	if dsn.Timeout == 0 {
		dsn.Timeout = cfg.ConnectTimeout
	}

	conn, err := gomysql.NewConnector(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigUnavailable, "invalid mysql DSN", err)
	}
	db := sql.OpenDB(conn)
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	d := &Driver{db: db}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "exec failed")
	}
	return nil
}

func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return row{d.db.QueryRowContext(ctx, query, args...)}
}

func (d *Driver) Dialect() database.Driver {
	return database.DriverMySQL
}

// row maps sql.ErrNoRows to errs.ErrKindNotFound on Scan.
type row struct {
	*sql.Row
}

func (r row) Scan(dest ...any) error {
	if err := r.Row.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}
