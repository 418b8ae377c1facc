package minio

import (
	"context"
	"errors"
	"net/http"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/filestore"
)

var _ filestore.Store = (*Driver)(nil)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no such key", miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, errs.ErrKindNotFound},
		{"no such bucket", miniogo.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}, errs.ErrKindBackendUnavailable},
		{"bad signature", miniogo.ErrorResponse{Code: "SignatureDoesNotMatch", StatusCode: http.StatusForbidden}, errs.ErrKindBackendUnavailable},
		{"bare 404", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, errs.ErrKindNotFound},
		{"too large", miniogo.ErrorResponse{Code: "EntityTooLarge", StatusCode: http.StatusBadRequest}, errs.ErrKindInvalidInput},
		{"slow down", miniogo.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, errs.ErrKindBackendRequestFailed},
		{"network", errors.New("connection reset by peer"), errs.ErrKindBackendRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op failed")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, "op failed", got.Message)
		})
	}

	assert.Nil(t, mapError(nil, "unused"))
}

func TestNew(t *testing.T) {
	_, err := New(filestore.NewConfig("localhost:9000", "", "k", "s"))
	assert.True(t, errs.IsDriverNotConfigured(err))

	_, err = New(filestore.NewConfig("localhost:9000", "images", "", ""))
	assert.True(t, errs.IsDriverNotConfigured(err))

	cfg := filestore.NewConfig("localhost:9000", "images", "k", "s")
	cfg.Insecure = true
	d, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "images", d.bucket)
	assert.NoError(t, d.Close())
}
