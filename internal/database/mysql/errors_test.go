package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

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
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"canceled", context.Canceled, errs.ErrKindTimeout},
		{"invalid conn", gomysql.ErrInvalidConn, errs.ErrKindBackendUnavailable},
		{"access denied", &gomysql.MySQLError{Number: errAccessDenied, Message: "denied"}, errs.ErrKindBackendUnavailable},
		{"no such table", &gomysql.MySQLError{Number: errNoSuchTable, Message: "missing"}, errs.ErrKindBackendRequestFailed},
		{"other number", &gomysql.MySQLError{Number: 1213}, errs.ErrKindBackendRequestFailed},
		{"plain", errors.New("boom"), errs.ErrKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op failed")
			assert.Equal(t, tt.want, errs.KindOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), database.DefaultConfig(database.DriverMySQL, "user:pass@tcp(localhost:3306)"))
	assert.True(t, errs.IsConfigUnavailable(err))
}
