package connection

import "sync"

// queue is an unbounded FIFO with one producer and one consumer.
// Pop blocks until an item is available or the queue is complete and empty.
type queue[T any] struct {
	mu       sync.Mutex
	items    []T
	ready    chan struct{} // signalled (non-blocking) on push and complete
	complete bool
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v. It reports false if the queue was already completed.
func (q *queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.complete {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
	return true
}

// Complete marks the end of input. Items already queued are still popped.
func (q *queue[T]) Complete() {
	q.mu.Lock()
	q.complete = true
	q.mu.Unlock()
	q.signal()
}

// Pop returns the next item, waiting for one if necessary. ok is false once
// the queue is complete and drained.
func (q *queue[T]) Pop() (v T, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v = q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, true
		}
		if q.complete {
			q.mu.Unlock()
			return v, false
		}
		q.mu.Unlock()
		<-q.ready
	}
}

// Len returns the number of queued items.
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
