package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted is joined with the last error when Retry gives up.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryOptions configures bounded exponential backoff.
type RetryOptions struct {
	MaxRetries        int
	WaitAfterError    time.Duration
	MaxWaitAfterError time.Duration
	Multiplier        float64

	// after is swapped out in tests.
	after func(time.Duration) <-chan time.Time
}

// DefaultRetryOptions matches the receipt polling defaults.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:        10,
		WaitAfterError:    500 * time.Millisecond,
		MaxWaitAfterError: 4 * time.Second,
		Multiplier:        2,
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, the context
// is cancelled, or MaxRetries attempts have been made. The wait between
// attempts starts at WaitAfterError and grows by Multiplier up to
// MaxWaitAfterError.
func Retry[T any](ctx context.Context, opts RetryOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = 2
	}
	after := opts.after
	if after == nil {
		after = time.After
	}

	wait := opts.WaitAfterError
	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == opts.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-after(wait):
		}
		wait = time.Duration(float64(wait) * opts.Multiplier)
		if opts.MaxWaitAfterError > 0 && wait > opts.MaxWaitAfterError {
			wait = opts.MaxWaitAfterError
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, opts.MaxRetries, lastErr)
}
