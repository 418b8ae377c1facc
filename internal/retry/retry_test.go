package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/koustreak/imgbed/internal/errs"
)

var fast = Policy{MaxRetries: 2, Step: time.Millisecond}

func TestDo(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		failures     int
		wantAttempts int
		wantKind     errs.ErrKind
		wantOK       bool
	}{
		{"success first try", nil, 0, 1, 0, true},
		{"transient then success", errs.New(errs.ErrKindBackendRequestFailed, "reset"), 2, 3, 0, true},
		{"transient exhausted", errs.New(errs.ErrKindBackendRequestFailed, "reset"), 10, 3, errs.ErrKindBackendRequestFailed, false},
		{"timeout not retried", errs.New(errs.ErrKindTimeout, "slow"), 10, 1, errs.ErrKindTimeout, false},
		{"not found not retried", errs.New(errs.ErrKindNotFound, "gone"), 10, 1, errs.ErrKindNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fast, func() error {
				attempts++
				if attempts <= tt.failures {
					return Classify(tt.err)
				}
				return nil
			}, nil)

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
		})
	}
}

func TestDo_NotifiesLinearWaits(t *testing.T) {
	var waits []time.Duration
	_ = Do(context.Background(), Policy{MaxRetries: 2, Step: time.Millisecond}, func() error {
		return errs.New(errs.ErrKindBackendRequestFailed, "reset")
	}, func(_ error, d time.Duration) {
		waits = append(waits, d)
	})

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fast, func() error { return errors.New("never reached twice") }, nil)
	assert.True(t, errs.IsTimeout(err))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.NoError(t, Permanent(nil))
}
