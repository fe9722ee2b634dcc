package retry

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 0
)

// Policy bounds how many times an operation is tried.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int

	// Delay is the pause between attempts. Zero retries immediately.
	Delay time.Duration
}

// Default returns the three-attempt, no-delay policy used for upstream calls.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, ctx is done, or
// the attempt budget runs out. The returned error is the last one seen.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		if IsPermanent(err) {
			return zero, err
		}
		lastErr = err

		if i < attempts-1 && p.Delay > 0 {
			select {
			case <-ctx.Done():
				return zero, lastErr
			case <-time.After(p.Delay):
			}
		}
	}
	return zero, lastErr
}
