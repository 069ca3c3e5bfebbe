package protoconn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

type testPing struct {
	Seq  int32
	Note string
}

type testPong struct {
	Seq int32
}

var (
	testPingSchema = protocol.DefinePacket(10, "Ping",
		protocol.Field(1, "Seq", protocol.Int32(), func(p *testPing) *int32 { return &p.Seq }),
		protocol.Field(2, "Note", protocol.String(), func(p *testPing) *string { return &p.Note }),
	)
	testPongSchema = protocol.DefinePacket(11, "Pong",
		protocol.Field(1, "Seq", protocol.Int32(), func(p *testPong) *int32 { return &p.Seq }),
	)
)

func newTestCodec(t *testing.T) *protocol.Codec {
	t.Helper()
	reg := protocol.NewRegistry()
	require.NoError(t, reg.Register(protocol.NewModule("test", testPingSchema, testPongSchema)))
	return protocol.NewCodec(reg)
}

type memFrame struct {
	typ   connection.MessageType
	data  []byte
	close *connection.CloseEvent
}

// memTransport is one end of an in-memory transport pair.
type memTransport struct {
	in   chan memFrame
	out  chan memFrame
	done chan struct{}
	once sync.Once
}

var errReleased = errors.New("mem transport released")

func memPipe() (*memTransport, *memTransport) {
	ab := make(chan memFrame, 256)
	ba := make(chan memFrame, 256)
	return &memTransport{in: ba, out: ab, done: make(chan struct{})},
		&memTransport{in: ab, out: ba, done: make(chan struct{})}
}

func (m *memTransport) ReadFragment(ctx context.Context, buf []byte) (connection.Fragment, error) {
	select {
	case <-ctx.Done():
		return connection.Fragment{}, ctx.Err()
	case <-m.done:
		return connection.Fragment{}, errReleased
	case f := <-m.in:
		if f.close != nil {
			return connection.Fragment{Close: f.close}, nil
		}
		n := copy(buf, f.data)
		return connection.Fragment{Type: f.typ, N: n, EndOfMessage: true}, nil
	}
}

func (m *memTransport) WriteMessage(ctx context.Context, t connection.MessageType, data []byte) error {
	select {
	case m.out <- memFrame{typ: t, data: append([]byte(nil), data...)}:
		return nil
	case <-m.done:
		return errReleased
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memTransport) Close(_ context.Context, status connection.CloseStatus, reason string) error {
	select {
	case m.out <- memFrame{close: &connection.CloseEvent{Status: status, Reason: reason, ByRemote: true}}:
	default:
	}
	return nil
}

func (m *memTransport) Release() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *memTransport) RemoteAddr() string  { return "mem" }
func (m *memTransport) Subprotocol() string { return connection.DefaultSubprotocol }

// servePair accepts both ends of a pipe and serves them until the test ends.
func servePair(t *testing.T, codec *protocol.Codec, aOpts, bOpts []Option) (*Conn, *Conn) {
	t.Helper()
	ta, tb := memPipe()
	a, err := Accept(ta, codec, aOpts...)
	require.NoError(t, err)
	b, err := Accept(tb, codec, bOpts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, c := range []*Conn{a, b} {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			_ = c.Serve(ctx)
		}(c)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		_ = a.Release()
		_ = b.Release()
	})

	for _, c := range []*Conn{a, b} {
		require.Eventually(t, func() bool {
			return c.Connection().State() == connection.StateOpen
		}, time2s, tick)
	}
	return a, b
}
