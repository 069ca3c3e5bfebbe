package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// MinInterval is the smallest interval a LoopTimer accepts.
const MinInterval = 10 * time.Millisecond

// ErrIntervalTooShort is returned for intervals below MinInterval.
var ErrIntervalTooShort = errors.New("async: interval below minimum")

// TickFunc is called on every tick with the time elapsed since the timer started.
type TickFunc func(elapsed time.Duration)

// LoopTimer calls a function repeatedly, sleeping interval between calls.
//
// It is a best-effort timer: the sleep starts after the callback returns, so
// ticks drift by the callback's run time. Callback panics are logged and do
// not stop the loop.
type LoopTimer struct {
	interval time.Duration
	fn       TickFunc
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// NewLoopTimer creates a stopped timer.
func NewLoopTimer(interval time.Duration, fn TickFunc, logger *slog.Logger) (*LoopTimer, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("%w: %s < %s", ErrIntervalTooShort, interval, MinInterval)
	}
	if fn == nil {
		return nil, errors.New("async: nil tick function")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoopTimer{interval: interval, fn: fn, logger: logger.With("component", "timer")}, nil
}

// Interval returns the configured interval.
func (t *LoopTimer) Interval() time.Duration {
	return t.interval
}

// Start begins ticking. Starting a running timer does nothing.
func (t *LoopTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.started = time.Now()
	go t.loop(ctx, t.started, t.done)
}

// Stop cancels the loop without waiting for it. It may be called from the
// tick function itself.
func (t *LoopTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Running reports whether the timer has been started and not stopped.
func (t *LoopTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Done returns a channel closed when the current loop has exited, or nil if
// the timer was never started.
func (t *LoopTimer) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *LoopTimer) loop(ctx context.Context, start time.Time, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		t.tick(time.Since(start))
		timer.Reset(t.interval)
	}
}

func (t *LoopTimer) tick(elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tick panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	t.fn(elapsed)
}
