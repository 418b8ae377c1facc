package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"config unavailable", New(ErrKindConfigUnavailable, "x"), IsConfigUnavailable},
		{"driver not configured", New(ErrKindDriverNotConfigured, "x"), IsDriverNotConfigured},
		{"index read failure", New(ErrKindIndexReadFailure, "x"), IsIndexReadFailure},
		{"index write refused", New(ErrKindIndexWriteRefused, "x"), IsIndexWriteRefused},
		{"backend unavailable", New(ErrKindBackendUnavailable, "x"), IsBackendUnavailable},
		{"backend request failed", New(ErrKindBackendRequestFailed, "x"), IsBackendRequestFailed},
		{"not found", New(ErrKindNotFound, "x"), IsNotFound},
		{"invalid input", New(ErrKindInvalidInput, "x"), IsInvalidInput},
		{"timeout", New(ErrKindTimeout, "x"), IsTimeout},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(ErrKindNotFound, "x")), IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}

	assert.False(t, IsNotFound(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
}

func TestError_Format(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrKindBackendRequestFailed, "put object failed", cause)

	assert.Equal(t, "[backend_request_failed] put object failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[not_found] short id abc", Newf(ErrKindNotFound, "short id %s", "abc").Error())
}

func TestDescribe(t *testing.T) {
	f := Describe(Wrap(ErrKindIndexReadFailure, "index document is corrupt", errors.New("unexpected EOF")))
	assert.Equal(t, Failure{Kind: "index_read_failure", Message: "index document is corrupt"}, f)

	assert.Equal(t, Failure{Kind: "unknown", Message: "internal error"}, Describe(errors.New("boom")))
	assert.Equal(t, Failure{}, Describe(nil))
}
