package async

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lock is a mutual-exclusion lock whose Acquire honors context cancellation.
// Waiters are granted the lock in the order they called Acquire.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the lock is held or ctx is done. The returned release
// function unlocks; calling it more than once has no further effect.
func (l *Lock) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return l.releaser(), nil
}

// TryAcquire takes the lock only if it is free.
func (l *Lock) TryAcquire() (release func(), ok bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	return l.releaser(), true
}

func (l *Lock) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			defer func() { _ = recover() }()
			l.sem.Release(1)
		})
	}
}
