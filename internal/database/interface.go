// Package database is the minimal SQL contract used by the SQL index
// backend. Engine-specific packages (postgres, mysql) implement DB and map
// their native errors into *errs.Error.
package database

import (
	"context"
	"strconv"
)

// DB is the central contract for all database operations.
// Layers above this package talk only to this interface.
type DB interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string, args ...any) error

	// QueryRow executes a SQL statement that returns at most one row.
	// Scan on the returned Row yields an errs.ErrKindNotFound error when
	// there is no row.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Dialect reports the engine, for differences in SQL text.
	Dialect() Driver
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}

// Placeholder returns the n-th (1-based) bind parameter for the driver.
func Placeholder(d Driver, n int) string {
	if d == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
