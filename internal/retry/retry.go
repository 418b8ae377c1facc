// Package retry runs remote calls with a small, bounded number of retries
// and linear backoff (step, 2*step, ...). Errors marked Permanent, and
// timeouts classified by Classify, end the loop immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/koustreak/imgbed/internal/errs"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries uint64        // extra attempts after the first
	Step       time.Duration // linear backoff step
}

// Default allows two extra attempts, waiting 1s then 2s.
func Default() Policy {
	return Policy{MaxRetries: 2, Step: time.Second}
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Classify marks every error except transient request failures as
// permanent. Timeouts are never retried.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) == errs.ErrKindBackendRequestFailed {
		return err
	}
	return Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the policy is
// exhausted or ctx is done. onRetry may be nil. The returned error is never
// wrapped in a permanent marker.
func Do(ctx context.Context, p Policy, op func() error, onRetry func(err error, wait time.Duration)) error {
	b := backoff.WithContext(backoff.WithMaxRetries(&linear{step: p.Step}, p.MaxRetries), ctx)
	if onRetry == nil {
		onRetry = func(error, time.Duration) {}
	}
	err := backoff.RetryNotify(op, b, onRetry)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if err != nil && errs.KindOf(err) == errs.ErrKindUnknown &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return errs.Wrap(errs.ErrKindTimeout, "operation cancelled", err)
	}
	return err
}

// linear waits step, 2*step, 3*step, ... between attempts.
type linear struct {
	step    time.Duration
	attempt int
}

func (b *linear) NextBackOff() time.Duration {
	b.attempt++
	return b.step * time.Duration(b.attempt)
}

func (b *linear) Reset() {
	b.attempt = 0
}
