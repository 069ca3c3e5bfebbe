package connection

import (
	"testing"
	"time"
)

func TestQueueOrder(t *testing.T) {
	q := newQueue[int]()
	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) = false", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Errorf("Pop() = %d, %v; want %d, true", v, ok, i)
		}
	}
}

func TestQueueCompleteDrains(t *testing.T) {
	q := newQueue[string]()
	q.Push("a")
	q.Complete()

	if q.Push("b") {
		t.Error("Push after Complete = true, want false")
	}
	if v, ok := q.Pop(); !ok || v != "a" {
		t.Errorf("Pop() = %q, %v; want a, true", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on drained queue ok = true")
	}
}

func TestQueuePopBlocks(t *testing.T) {
	q := newQueue[int]()
	got := make(chan int, 1)
	go func() {
		v, _ := q.Pop()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(42)
	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestQueueCompleteWakesPop(t *testing.T) {
	q := newQueue[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Complete()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop() ok = true after Complete on empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Complete did not wake Pop")
	}
}

func TestQueueProducerConsumer(t *testing.T) {
	const n = 10000
	q := newQueue[int]()
	go func() {
		for i := 0; i < n; i++ {
			q.Push(i)
		}
		q.Complete()
	}()

	want := 0
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		if v != want {
			t.Fatalf("Pop() = %d, want %d", v, want)
		}
		want++
	}
	if want != n {
		t.Errorf("popped %d items, want %d", want, n)
	}
}
