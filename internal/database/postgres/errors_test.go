package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/imgbed/internal/database"
	"github.com/koustreak/imgbed/internal/errs"
)

var _ database.DB = (*Driver)(nil)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), errs.ErrKindNotFound},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"auth", &pgconn.PgError{Code: pgErrInvalidPassword}, errs.ErrKindBackendUnavailable},
		{"undefined table", &pgconn.PgError{Code: pgErrUndefinedTable, Message: "relation does not exist"}, errs.ErrKindBackendRequestFailed},
		{"other sqlstate", &pgconn.PgError{Code: "23505"}, errs.ErrKindBackendRequestFailed},
		{"plain", errors.New("boom"), errs.ErrKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op failed")
			assert.Equal(t, tt.want, errs.KindOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, mapError(nil, "unused"))
}

func TestApplyPool(t *testing.T) {
	p, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/imgbed")
	require.NoError(t, err)

	cfg := database.DefaultConfig(database.DriverPostgres, "")
	applyPool(p, cfg)
	assert.Equal(t, cfg.MaxConns, p.MaxConns)
	assert.Equal(t, cfg.ConnectTimeout, p.ConnConfig.ConnectTimeout)
	assert.Equal(t, "imgbed", p.ConnConfig.RuntimeParams["application_name"])

	p, err = pgxpool.ParseConfig("postgres://u:p@localhost:5432/imgbed?application_name=ops")
	require.NoError(t, err)
	applyPool(p, cfg)
	assert.Equal(t, "ops", p.ConnConfig.RuntimeParams["application_name"], "DSN wins")
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), database.DefaultConfig(database.DriverPostgres, "postgres://u:p@localhost:notaport/x"))
	assert.True(t, errs.IsConfigUnavailable(err))
}
