package connection

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/byteflow-dev/byteflow/pkg/async"
	"github.com/byteflow-dev/byteflow/pkg/bytestream"
)

// ErrClosed is returned by Connect when the connection was closed while
// connecting.
var ErrClosed = errors.New("connection: closed")

// Role is the side of the connection that created it.
type Role uint8

const (
	RoleInitiator Role = iota + 1 // dials out, see NewClient
	RoleAcceptor                  // wraps an accepted transport, see NewServer
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleAcceptor:
		return "acceptor"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a connection. Closed is terminal.
type State int32

const (
	StateNone State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Connection is a message connection over a Transport.
//
// A client connection is created with NewClient and started with Connect; a
// server connection wraps an accepted transport with NewServer and is driven
// by Serve. Incoming events are delivered to the Handler in order on a
// dedicated dispatch goroutine.
type Connection struct {
	id     string
	role   Role
	urls   []string
	opts   options
	logger *slog.Logger

	state    atomic.Int32
	lastRecv atomic.Int64

	mu        sync.Mutex
	transport Transport
	endpoint  string
	userData  any
	pipe      *pipeline

	done        chan struct{}
	doneOnce    sync.Once
	closeOnce   sync.Once
	releaseOnce sync.Once
}

func newConnection(role Role, opts []Option) *Connection {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Connection{
		id:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		role:     role,
		opts:     o,
		userData: o.userData,
		done:     make(chan struct{}),
	}
	c.logger = o.logger.With(
		"component", "connection",
		"conn", c.id,
		"tag", o.tag,
		"role", role.String())
	return c
}

// NewClient creates an initiator connection for the candidate endpoints.
// Connect picks the first reachable one.
func NewClient(urls []string, opts ...Option) *Connection {
	c := newConnection(RoleInitiator, opts)
	c.urls = append([]string(nil), urls...)
	if c.opts.dialer == nil {
		c.opts.dialer = NewWebSocketDialer()
	}
	return c
}

// NewServer creates an acceptor connection over an established transport.
func NewServer(t Transport, opts ...Option) (*Connection, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	c := newConnection(RoleAcceptor, opts)
	c.transport = t
	c.endpoint = t.RemoteAddr()
	return c, nil
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// Tag returns the label set with WithTag.
func (c *Connection) Tag() string { return c.opts.tag }

// Role returns whether the connection dialed out or was accepted.
func (c *Connection) Role() Role { return c.role }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Logger returns the connection's logger.
func (c *Connection) Logger() *slog.Logger { return c.logger }

// Endpoint returns the dialed URL of a client or the remote address of a
// server connection.
func (c *Connection) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Subprotocol returns the negotiated subprotocol, if connected.
func (c *Connection) Subprotocol() string {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return ""
	}
	return t.Subprotocol()
}

// UserData returns the application value attached to the connection.
func (c *Connection) UserData() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userData
}

// SetUserData attaches an application value to the connection.
func (c *Connection) SetUserData(v any) {
	c.mu.Lock()
	c.userData = v
	c.mu.Unlock()
}

// LastReceived returns when the last complete message arrived, or the zero
// time if none has.
func (c *Connection) LastReceived() time.Time {
	ns := c.lastRecv.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Done returns a channel that is closed once the connection is closed and
// its receive and dispatch loops have exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Connect probes the endpoints (unless probing is skipped), dials the chosen
// one and starts the receive pipeline on dedicated goroutines. ctx bounds
// probing and dialing only.
func (c *Connection) Connect(ctx context.Context) error {
	if c.role != RoleInitiator {
		return ErrWrongRole
	}
	if !c.state.CompareAndSwap(int32(StateNone), int32(StateConnecting)) {
		return ErrAlreadyStarted
	}

	t, url, err := c.dial(ctx)
	if err != nil {
		c.state.Store(int32(StateClosed))
		c.finish()
		c.logger.Warn("connect failed", "error", err)
		return err
	}

	p := newPipeline(c, context.Background())
	c.mu.Lock()
	c.transport = t
	c.endpoint = url
	c.pipe = p
	c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		_ = t.Release()
		c.finish()
		return ErrClosed
	}
	c.logger.Info("connected", "url", url, "subprotocol", t.Subprotocol())

	p.q.Push(event{kind: eventOpened})
	dispatchDone := async.RunLongRunning(p.dispatch)
	recvDone := async.RunLongRunning(func() { _ = p.receive() })
	go c.finishAfter(recvDone, dispatchDone)
	return nil
}

func (c *Connection) dial(ctx context.Context) (Transport, string, error) {
	if len(c.urls) == 0 {
		return nil, "", ErrNoEndpoints
	}
	url := c.urls[0]
	if !c.opts.skipProbe {
		var err error
		url, err = Probe(ctx, c.opts.dialer, c.urls, c.opts.probeTimeout, c.opts.probeDelay, c.logger)
		if err != nil {
			return nil, "", err
		}
	}
	t, err := c.opts.dialer.Dial(ctx, url)
	if err != nil {
		return nil, "", err
	}
	return t, url, nil
}

// Serve runs the receive loop of a server connection on the calling
// goroutine and returns when it ends: after the peer closes, after Close, on
// a transport error (which is also reported to OnError), or when ctx is
// cancelled, in which case the connection is closed with CloseGoingAway.
// Queued events are dispatched before Serve returns.
func (c *Connection) Serve(ctx context.Context) error {
	if c.role != RoleAcceptor {
		return ErrWrongRole
	}
	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(StateNone), int32(StateOpen)) {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	p := newPipeline(c, ctx)
	c.pipe = p
	c.mu.Unlock()
	c.logger.Info("serving", "remote", c.Endpoint())

	p.q.Push(event{kind: eventOpened})
	dispatchDone := async.RunLongRunning(p.dispatch)
	err := p.receive()
	if ctx.Err() != nil {
		c.Close(context.Background(), CloseGoingAway, "server shutting down")
	}
	<-dispatchDone
	c.finish()
	return err
}

// SendBinary writes a binary message. It does nothing unless the connection
// is open.
func (c *Connection) SendBinary(ctx context.Context, data []byte) error {
	return c.send(ctx, BinaryMessage, data)
}

// SendText writes a text message in the configured text encoding. It does
// nothing unless the connection is open.
func (c *Connection) SendText(ctx context.Context, text string) error {
	if c.State() != StateOpen {
		return nil
	}
	b, err := bytestream.EncodeString(text, c.opts.text)
	if err != nil {
		return err
	}
	return c.send(ctx, TextMessage, b)
}

func (c *Connection) send(ctx context.Context, mt MessageType, data []byte) error {
	if c.State() != StateOpen {
		return nil
	}
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	return t.WriteMessage(ctx, mt, data)
}

// Close stops the receive pipeline, sends a close frame with status and
// reason, and notifies OnClosing. Only the first call has any effect.
// Transport errors are logged and otherwise ignored.
func (c *Connection) Close(ctx context.Context, status CloseStatus, reason string) {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))

		c.mu.Lock()
		p := c.pipe
		t := c.transport
		c.mu.Unlock()

		if p != nil {
			p.stop()
		} else {
			c.finish()
		}
		if t != nil && prev != StateNone {
			if err := t.Close(ctx, status, reason); err != nil {
				c.logger.Debug("transport close failed", "error", err)
			}
		}

		c.logger.Info("connection closing", "status", int(status), "reason", reason, "state", prev.String())
		c.notifyClosing(CloseEvent{Status: status, Reason: reason})
	})
}

// Release closes the connection if needed and frees the transport. It is
// safe to call more than once.
func (c *Connection) Release() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Close(ctx, CloseNormal, "")

	var err error
	c.releaseOnce.Do(func() {
		c.mu.Lock()
		t := c.transport
		c.mu.Unlock()
		if t != nil {
			err = t.Release()
		}
	})
	return err
}

func (c *Connection) notifyClosing(e CloseEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("closing handler panic", "panic", r)
		}
	}()
	c.opts.handler.OnClosing(c, e)
}

func (c *Connection) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Connection) finishAfter(chans ...<-chan struct{}) {
	for _, ch := range chans {
		<-ch
	}
	c.finish()
}

// markClosed moves an open connection to Closed after the transport failed or
// the peer closed.
func (c *Connection) markClosed() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosed))
}
