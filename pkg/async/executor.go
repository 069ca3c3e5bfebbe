package async

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by WaitUntil when the deadline passes first.
var ErrTimeout = errors.New("async: timed out")

// RunWithTimeout runs fn and waits at most timeout for it. The context passed
// to fn is cancelled when the timeout wins. A timeout is not an error: it is
// reported by completed == false with a zero result. err is fn's error, or
// ctx's error if the parent context ends first.
func RunWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (result T, completed bool, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(runCtx)
		ch <- outcome{v, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case o := <-ch:
		return o.v, true, o.err
	case <-timer.C:
		return zero, false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// RunAfter waits delay and then runs fn. It returns ctx's error without
// running fn if ctx ends during the wait.
func RunAfter(ctx context.Context, delay time.Duration, fn func(ctx context.Context)) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	fn(ctx)
	return nil
}

// RunLongRunning starts fn on its own goroutine for loops expected to run for
// the lifetime of a connection. The returned channel is closed when fn returns.
func RunLongRunning(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

// WaitUntil polls pred every interval until it returns true. It returns
// ErrTimeout if timeout elapses first, or ctx's error if ctx ends. Panics in
// pred are not recovered. A non-positive interval is rejected with
// ErrIntervalTooShort before pred runs.
func WaitUntil(ctx context.Context, interval, timeout time.Duration, pred func() bool) error {
	if interval <= 0 {
		return fmt.Errorf("%w: poll interval %s", ErrIntervalTooShort, interval)
	}
	if pred() {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case <-ticker.C:
			if pred() {
				return nil
			}
		}
	}
}
