package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Clock is the time source for polling loops.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// ErrTimeout is returned by Poll when the condition never held.
var ErrTimeout = errors.New("condition not met before deadline")

// Poll evaluates cond immediately and then every interval until it returns
// true, returns an error, the timeout elapses or ctx is done. The last
// condition error seen is attached to a timeout.
func Poll(ctx context.Context, clock Clock, interval, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	deadline := clock.Now().Add(timeout)
	var lastErr error
	for {
		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if err != nil {
			lastErr = err
		}
		if !clock.Now().Before(deadline) {
			if lastErr != nil {
				return fmt.Errorf("%w after %v: %v", ErrTimeout, timeout, lastErr)
			}
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(interval):
		}
	}
}

// PermanentError stops Poll without waiting for the deadline.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
