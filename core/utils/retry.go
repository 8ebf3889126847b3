package utils

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"beatvault/logger"
)

// RetryPolicy bounds a retry-with-backoff loop.
type RetryPolicy struct {
	Attempts uint64        // retries after the first try
	Base     time.Duration // first backoff
	Cap      time.Duration // upper bound per wait
}

// DefaultRetry is used for object writes and ledger upserts.
var DefaultRetry = RetryPolicy{Attempts: 3, Base: 200 * time.Millisecond, Cap: 2 * time.Second}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. Every error from fn is treated as retryable unless
// fn wraps it with Permanent.
func Retry(ctx context.Context, op string, p RetryPolicy, fn func(ctx context.Context) error) error {
	b := retry.NewExponential(p.Base)
	if p.Cap > 0 {
		b = retry.WithCappedDuration(p.Cap, b)
	}
	b = retry.WithMaxRetries(p.Attempts, b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		logger.Warn("retrying after failure",
			logger.String("op", op),
			logger.Int("attempt", attempt),
			logger.ErrorField(err))
		return retry.RetryableError(err)
	})
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err so Retry stops immediately and returns err itself.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}
