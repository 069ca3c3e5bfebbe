package connection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

func serveAsync(t *testing.T, c *Connection) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Serve(context.Background()) }()
	return errCh
}

func waitServe(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestServeDispatchOrder(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{delay: 5 * time.Millisecond}
	c, err := NewServer(ft, WithHandler(rec), WithTag("order"))
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}

	ft.binary("m1")
	ft.binary("m2")
	ft.binary("m3")
	ft.remoteClose(CloseNormal, "bye")

	if err := waitServe(t, serveAsync(t, c)); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}

	want := []string{"opened", "msg:m1", "msg:m2", "msg:m3", "closed:bye"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %s, want Closed", c.State())
	}
	if c.LastReceived().IsZero() {
		t.Error("LastReceived() is zero after messages")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Serve returned")
	}
}

func TestFragmentReassembly(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{}
	c, _ := NewServer(ft, WithHandler(rec), WithReadBufferSize(8))

	ft.reads <- fakeRead{typ: BinaryMessage, data: []byte("hel")}
	ft.reads <- fakeRead{typ: BinaryMessage, data: []byte("lo"), end: true}
	ft.reads <- fakeRead{typ: TextMessage, data: []byte("wor")}
	ft.reads <- fakeRead{typ: TextMessage, data: []byte("ld"), end: true}
	ft.remoteClose(CloseNormal, "")

	_ = waitServe(t, serveAsync(t, c))

	want := []string{"opened", "msg:hello", "text:world", "closed:"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestTextEncodingOption(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{}
	c, _ := NewServer(ft, WithHandler(rec), WithTextEncoding(charmap.ISO8859_1))

	ft.reads <- fakeRead{typ: TextMessage, data: []byte{'c', 'a', 'f', 0xE9}, end: true}
	ft.remoteClose(CloseNormal, "")
	_ = waitServe(t, serveAsync(t, c))

	got := rec.snapshot()
	if len(got) < 2 || got[1] != "text:café" {
		t.Errorf("events = %v, want text:café second", got)
	}
}

func TestWrongRole(t *testing.T) {
	client := NewClient([]string{"ws://localhost:1"})
	if err := client.Serve(context.Background()); !errors.Is(err, ErrWrongRole) {
		t.Errorf("client Serve() error = %v, want ErrWrongRole", err)
	}

	server, _ := NewServer(newFakeTransport())
	if err := server.Connect(context.Background()); !errors.Is(err, ErrWrongRole) {
		t.Errorf("server Connect() error = %v, want ErrWrongRole", err)
	}

	if _, err := NewServer(nil); !errors.Is(err, ErrNilTransport) {
		t.Errorf("NewServer(nil) error = %v, want ErrNilTransport", err)
	}
}

func TestSendDroppedUnlessOpen(t *testing.T) {
	ft := newFakeTransport()
	c, _ := NewServer(ft)

	if err := c.SendBinary(context.Background(), []byte{1}); err != nil {
		t.Errorf("SendBinary() before open error: %v", err)
	}
	if err := c.SendText(context.Background(), "x"); err != nil {
		t.Errorf("SendText() before open error: %v", err)
	}
	if n := len(ft.writesSnapshot()); n != 0 {
		t.Fatalf("writes before open = %d, want 0", n)
	}

	errCh := serveAsync(t, c)
	waitFor(t, time.Second, func() bool { return c.State() == StateOpen })
	if err := c.SendBinary(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("SendBinary() error: %v", err)
	}
	if err := c.SendText(context.Background(), "hi"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}

	c.Close(context.Background(), CloseNormal, "done")
	_ = waitServe(t, errCh)

	if err := c.SendBinary(context.Background(), []byte{3}); err != nil {
		t.Errorf("SendBinary() after close error: %v", err)
	}
	writes := ft.writesSnapshot()
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	if writes[0].typ != BinaryMessage || writes[1].typ != TextMessage || string(writes[1].data) != "hi" {
		t.Errorf("writes = %+v, want binary then text \"hi\"", writes)
	}
}

func TestCloseIdempotentConcurrent(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{}
	c, _ := NewServer(ft, WithHandler(rec))
	errCh := serveAsync(t, c)
	waitFor(t, time.Second, func() bool { return c.State() == StateOpen })

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close(context.Background(), CloseNormal, "bye")
		}()
	}
	wg.Wait()

	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() after Close error: %v", err)
	}
	if n := rec.closing.Load(); n != 1 {
		t.Errorf("closing notifications = %d, want 1", n)
	}
	if closes := ft.closesSnapshot(); len(closes) != 1 || closes[0].Reason != "bye" {
		t.Errorf("transport closes = %+v, want one with reason bye", closes)
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %s, want Closed", c.State())
	}
	if got := rec.errorsSnapshot(); len(got) != 0 {
		t.Errorf("errors after graceful close = %v, want none", got)
	}
}

func TestCloseSwallowsTransportError(t *testing.T) {
	ft := newFakeTransport()
	ft.closeErr = errors.New("broken pipe")
	rec := &recorder{}
	c, _ := NewServer(ft, WithHandler(rec))
	errCh := serveAsync(t, c)
	waitFor(t, time.Second, func() bool { return c.State() == StateOpen })

	c.Close(context.Background(), CloseNormal, "")
	_ = waitServe(t, errCh)

	if err := c.Release(); err != nil {
		t.Errorf("Release() error: %v", err)
	}
	if err := c.Release(); err != nil {
		t.Errorf("second Release() error: %v", err)
	}
	if n := ft.released.Load(); n != 1 {
		t.Errorf("transport released %d times, want 1", n)
	}
	if n := rec.closing.Load(); n != 1 {
		t.Errorf("closing notifications = %d, want 1", n)
	}
}

func TestCloseDrainsQueuedMessages(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{delay: 20 * time.Millisecond}
	c, _ := NewServer(ft, WithHandler(rec))

	ft.binary("a")
	ft.binary("b")
	errCh := serveAsync(t, c)
	waitFor(t, time.Second, func() bool { return !c.LastReceived().IsZero() && len(ft.reads) == 0 })
	// Both messages are queued; the handler is still working on the first.
	time.Sleep(5 * time.Millisecond)
	c.Close(context.Background(), CloseNormal, "")
	_ = waitServe(t, errCh)

	want := []string{"opened", "msg:a", "msg:b"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestReceiveErrorReported(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{}
	c, _ := NewServer(ft, WithHandler(rec))

	boom := errors.New("connection reset")
	ft.binary("x")
	ft.reads <- fakeRead{err: boom}

	err := waitServe(t, serveAsync(t, c))
	if !errors.Is(err, boom) {
		t.Errorf("Serve() error = %v, want %v", err, boom)
	}
	want := []string{"opened", "msg:x", "error"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %s, want Closed", c.State())
	}
}

func TestHandlerPanicReported(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{}
	rec.onMsg = func(_ *Connection, m Message) {
		if string(m.Binary) == "bad" {
			panic("handler bug")
		}
	}
	c, _ := NewServer(ft, WithHandler(rec))

	ft.binary("bad")
	ft.binary("good")
	ft.remoteClose(CloseNormal, "")
	_ = waitServe(t, serveAsync(t, c))

	want := []string{"opened", "msg:bad", "error", "msg:good", "closed:"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	errs := rec.errorsSnapshot()
	if len(errs) != 1 || !errors.Is(errs[0], ErrHandlerPanic) {
		t.Errorf("errors = %v, want one ErrHandlerPanic", errs)
	}
}

func TestServeContextCancel(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{}
	c, _ := NewServer(ft, WithHandler(rec))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Serve(ctx) }()
	waitFor(t, time.Second, func() bool { return c.State() == StateOpen })
	cancel()

	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() error = %v, want nil", err)
	}
	closes := ft.closesSnapshot()
	if len(closes) != 1 || closes[0].Status != CloseGoingAway {
		t.Errorf("transport closes = %+v, want one going away", closes)
	}
	if err := c.Serve(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Serve() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestConnectSkipProbe(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{byURL: map[string]*fakeTransport{"ws://a": ft}}
	rec := &recorder{}
	c := NewClient([]string{"ws://a", "ws://b"}, WithDialer(d), WithSkipProbe(), WithHandler(rec), WithUserData(7))

	if c.State() != StateNone {
		t.Fatalf("State() = %s, want None", c.State())
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyStarted", err)
	}
	if c.State() != StateOpen || c.Endpoint() != "ws://a" {
		t.Errorf("State() = %s, Endpoint() = %q; want Open, ws://a", c.State(), c.Endpoint())
	}
	if c.Subprotocol() != DefaultSubprotocol {
		t.Errorf("Subprotocol() = %q, want %q", c.Subprotocol(), DefaultSubprotocol)
	}
	if c.UserData() != 7 {
		t.Errorf("UserData() = %v, want 7", c.UserData())
	}
	if len(c.ID()) != 32 || strings.Contains(c.ID(), "-") {
		t.Errorf("ID() = %q, want 32 hex chars", c.ID())
	}

	ft.binary("hello")
	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 2 })

	if err := c.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after Release")
	}
	if got := d.attemptsSnapshot(); len(got) != 1 {
		t.Errorf("dial attempts = %v, want one", got)
	}
	want := []string{"opened", "msg:hello"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestConnectProbesEndpoints(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{byURL: map[string]*fakeTransport{"ws://b": ft}}
	c := NewClient([]string{"ws://a", "ws://b"}, WithDialer(d), WithProbe(50*time.Millisecond, 10*time.Millisecond))
	defer c.Release()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if c.Endpoint() != "ws://b" {
		t.Errorf("Endpoint() = %q, want ws://b", c.Endpoint())
	}
	// a (probe fails), b (probe), b (real dial).
	want := []string{"ws://a", "ws://b", "ws://b"}
	if got := d.attemptsSnapshot(); !equalStrings(got, want) {
		t.Errorf("dial attempts = %v, want %v", got, want)
	}
}

func TestConnectFailures(t *testing.T) {
	d := &fakeDialer{byURL: map[string]*fakeTransport{}}

	c := NewClient(nil, WithDialer(d))
	if err := c.Connect(context.Background()); !errors.Is(err, ErrNoEndpoints) {
		t.Errorf("Connect(no urls) error = %v, want ErrNoEndpoints", err)
	}
	if c.State() != StateClosed {
		t.Errorf("State() after failed Connect = %s, want Closed", c.State())
	}

	c = NewClient([]string{"ws://a", "ws://b"}, WithDialer(d), WithProbe(20*time.Millisecond, time.Millisecond))
	if err := c.Connect(context.Background()); !errors.Is(err, ErrNoReachableEndpoint) {
		t.Errorf("Connect(unreachable) error = %v, want ErrNoReachableEndpoint", err)
	}

	c = NewClient([]string{"ws://a"}, WithDialer(d), WithSkipProbe())
	if err := c.Connect(context.Background()); err == nil {
		t.Error("Connect(skip probe, unreachable) should fail")
	}
}

func TestCloseBeforeStart(t *testing.T) {
	ft := newFakeTransport()
	rec := &recorder{}
	c, _ := NewServer(ft, WithHandler(rec))

	c.Close(context.Background(), CloseNormal, "")
	if c.State() != StateClosed {
		t.Errorf("State() = %s, want Closed", c.State())
	}
	if n := len(ft.closesSnapshot()); n != 0 {
		t.Errorf("transport closes = %d, want 0 for a never-opened connection", n)
	}
	if n := rec.closing.Load(); n != 1 {
		t.Errorf("closing notifications = %d, want 1", n)
	}
	if err := c.Serve(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Serve() after Close error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateNone, "None"},
		{StateConnecting, "Connecting"},
		{StateOpen, "Open"},
		{StateClosed, "Closed"},
		{State(9), "Unknown"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.s, got, tc.want)
		}
	}
}
