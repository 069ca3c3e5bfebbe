package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRead is one scripted ReadFragment result.
type fakeRead struct {
	typ   MessageType
	data  []byte
	end   bool
	close *CloseEvent
	err   error
}

type written struct {
	typ  MessageType
	data []byte
}

// fakeTransport is a Transport whose reads are fed through a channel.
type fakeTransport struct {
	reads    chan fakeRead
	closeErr error

	mu       sync.Mutex
	writes   []written
	closes   []CloseEvent
	released atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan fakeRead, 64)}
}

func (f *fakeTransport) ReadFragment(ctx context.Context, buf []byte) (Fragment, error) {
	select {
	case <-ctx.Done():
		return Fragment{}, ctx.Err()
	case r := <-f.reads:
		if r.err != nil {
			return Fragment{}, r.err
		}
		if r.close != nil {
			return Fragment{Close: r.close}, nil
		}
		n := copy(buf, r.data)
		return Fragment{Type: r.typ, N: n, EndOfMessage: r.end}, nil
	}
}

func (f *fakeTransport) WriteMessage(_ context.Context, t MessageType, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, written{typ: t, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeTransport) Close(_ context.Context, status CloseStatus, reason string) error {
	f.mu.Lock()
	f.closes = append(f.closes, CloseEvent{Status: status, Reason: reason})
	f.mu.Unlock()
	return f.closeErr
}

func (f *fakeTransport) Release() error {
	f.released.Add(1)
	return nil
}

func (f *fakeTransport) RemoteAddr() string  { return "fake:1" }
func (f *fakeTransport) Subprotocol() string { return DefaultSubprotocol }

func (f *fakeTransport) binary(data string) {
	f.reads <- fakeRead{typ: BinaryMessage, data: []byte(data), end: true}
}

func (f *fakeTransport) remoteClose(status CloseStatus, reason string) {
	f.reads <- fakeRead{close: &CloseEvent{Status: status, Reason: reason, ByRemote: true}}
}

func (f *fakeTransport) writesSnapshot() []written {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]written(nil), f.writes...)
}

func (f *fakeTransport) closesSnapshot() []CloseEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CloseEvent(nil), f.closes...)
}

// fakeDialer hands out transports per URL; URLs without one fail.
type fakeDialer struct {
	mu       sync.Mutex
	byURL    map[string]*fakeTransport
	attempts []string
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, url)
	t, ok := d.byURL[url]
	if !ok {
		return nil, errors.New("dial " + url + ": connection refused")
	}
	return t, nil
}

func (d *fakeDialer) attemptsSnapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.attempts...)
}

// recorder is a Handler that records events as strings.
type recorder struct {
	mu      sync.Mutex
	events  []string
	errs    []error
	closing atomic.Int32
	delay   time.Duration
	onMsg   func(c *Connection, m Message)
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) OnOpened(*Connection) { r.add("opened") }

func (r *recorder) OnMessage(c *Connection, m Message) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if m.Type == TextMessage {
		r.add("text:" + m.Text)
	} else {
		r.add("msg:" + string(m.Binary))
	}
	if r.onMsg != nil {
		r.onMsg(c, m)
	}
}

func (r *recorder) OnClosed(_ *Connection, e CloseEvent) { r.add("closed:" + e.Reason) }

func (r *recorder) OnError(_ *Connection, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.add("error")
}

func (r *recorder) OnClosing(*Connection, CloseEvent) { r.closing.Add(1) }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) errorsSnapshot() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
