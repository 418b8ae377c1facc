package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/imgbed/internal/errs"
)

// PostgreSQL SQLSTATE error codes relevant to the index table.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrConnectionException = "08000"
	pgErrConnectionFailure   = "08006"
	pgErrInvalidPassword     = "28P01"
	pgErrInvalidAuth         = "28000"
	pgErrSyntaxError         = "42601"
	pgErrUndefinedTable      = "42P01"
	pgErrUndefinedColumn     = "42703"
)

// mapError converts a pgx error into an *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "record not found", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrConnectionException, pgErrConnectionFailure, pgErrInvalidPassword, pgErrInvalidAuth:
			return errs.Wrap(errs.ErrKindBackendUnavailable, "database connection failed", err)
		case pgErrSyntaxError, pgErrUndefinedTable, pgErrUndefinedColumn:
			return errs.Wrap(errs.ErrKindBackendRequestFailed, fmt.Sprintf("query error: %s", pgErr.Message), err)
		}
		return errs.Wrap(errs.ErrKindBackendRequestFailed, msg, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.ErrKindBackendUnavailable, "database connection failed", err)
	}

	return errs.Wrap(errs.ErrKindUnknown, msg, err)
}
