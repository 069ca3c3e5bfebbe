package protoconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/byteflow-dev/byteflow/pkg/async"
	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

// HeartbeatTask is the scheduler task name of the heartbeat sender.
const HeartbeatTask = "__heartbeat"

var (
	// ErrTextFrame is reported when the peer sends a text frame.
	ErrTextFrame = errors.New("protoconn: text frame on binary protocol")

	// ErrNilCodec is returned by Accept when no codec is given and none is
	// registered process-wide.
	ErrNilCodec = errors.New("protoconn: no codec")
)

// Conn is a protocol connection: heartbeats, liveness and packet routing on
// top of a connection.Connection.
type Conn struct {
	conn     *connection.Connection
	codec    *protocol.Codec
	interval time.Duration
	sched    *async.Scheduler
	hooks    []Hooks
	logger   *slog.Logger

	lastHeartbeat atomic.Int64
	lastPacket    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	routes   map[reflect.Type]PacketFunc
	fallback PacketFunc
	chain    []Middleware
}

func newConn(codec *protocol.Codec, opts []Option) (*Conn, []connection.Option) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if codec == nil {
		codec = protocol.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		codec:    codec,
		interval: o.interval,
		sched:    async.NewScheduler(o.logger),
		hooks:    o.hooks,
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
		routes:   make(map[reflect.Type]PacketFunc),
	}

	connOpts := make([]connection.Option, 0, len(o.conn)+2)
	connOpts = append(connOpts, connection.WithLogger(o.logger))
	connOpts = append(connOpts, o.conn...)
	connOpts = append(connOpts, connection.WithHandler(c))
	return c, connOpts
}

// Dial creates an initiator Conn for the candidate endpoints. A nil codec
// uses protocol.Default(). Call Connect to open it.
func Dial(urls []string, codec *protocol.Codec, opts ...Option) *Conn {
	c, connOpts := newConn(codec, opts)
	c.conn = connection.NewClient(urls, connOpts...)
	c.logger = c.conn.Logger()
	return c
}

// Accept wraps an accepted transport. A nil codec uses protocol.Default().
// Call Serve to run it.
func Accept(t connection.Transport, codec *protocol.Codec, opts ...Option) (*Conn, error) {
	c, connOpts := newConn(codec, opts)
	if c.codec == nil {
		return nil, ErrNilCodec
	}
	conn, err := connection.NewServer(t, connOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.logger = conn.Logger()
	return c, nil
}

// Connection returns the underlying connection.
func (c *Conn) Connection() *connection.Connection { return c.conn }

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.conn.ID() }

// Codec returns the codec used for packets.
func (c *Conn) Codec() *protocol.Codec { return c.codec }

// HeartbeatInterval returns the configured heartbeat interval.
func (c *Conn) HeartbeatInterval() time.Duration { return c.interval }

// Context returns a context that is cancelled when the connection closes.
// Packet handlers receive a context derived from it.
func (c *Conn) Context() context.Context { return c.ctx }

// Connect opens an initiator Conn. See connection.Connection.Connect.
func (c *Conn) Connect(ctx context.Context) error {
	if c.codec == nil {
		return ErrNilCodec
	}
	return c.conn.Connect(ctx)
}

// Serve runs an acceptor Conn until it ends. See connection.Connection.Serve.
func (c *Conn) Serve(ctx context.Context) error {
	return c.conn.Serve(ctx)
}

// Send packs packet and sends it as a binary message. Nothing is sent unless
// the connection is open; encoding errors are returned either way.
func (c *Conn) Send(ctx context.Context, packet any) error {
	frame, err := c.codec.Pack(packet)
	if err != nil {
		return err
	}
	return c.conn.SendBinary(ctx, frame)
}

// Close closes the connection. See connection.Connection.Close.
func (c *Conn) Close(ctx context.Context, status connection.CloseStatus, reason string) {
	c.conn.Close(ctx, status, reason)
}

// Release closes the connection if needed and frees its transport.
func (c *Conn) Release() error {
	return c.conn.Release()
}

// IsAlive reports whether the connection is open and a heartbeat was sent or
// received within the last two heartbeat intervals. It is always false when
// heartbeats are disabled.
func (c *Conn) IsAlive() bool {
	if c.interval <= 0 || c.conn.State() != connection.StateOpen {
		return false
	}
	last := c.lastHeartbeat.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) < 2*c.interval
}

// LastHeartbeatTime returns when a heartbeat was last sent or received.
func (c *Conn) LastHeartbeatTime() time.Time { return loadTime(&c.lastHeartbeat) }

// LastPacketTime returns when the last business packet was received.
func (c *Conn) LastPacketTime() time.Time { return loadTime(&c.lastPacket) }

func loadTime(v *atomic.Int64) time.Time {
	ns := v.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (c *Conn) touchHeartbeat() {
	c.lastHeartbeat.Store(time.Now().UnixNano())
}

// OnOpened implements connection.Handler.
func (c *Conn) OnOpened(*connection.Connection) {
	c.touchHeartbeat()
	if c.interval > 0 {
		if err := c.sched.Schedule(HeartbeatTask, c.interval, c.sendHeartbeat); err != nil {
			c.logger.Error("heartbeat not scheduled", "error", err)
		}
		// Closed while the opened event was queued.
		if c.ctx.Err() != nil {
			c.sched.StopAll()
		}
	}
	for _, h := range c.hooks {
		if h.Opened != nil {
			h.Opened(c)
		}
	}
}

// OnMessage implements connection.Handler.
func (c *Conn) OnMessage(_ *connection.Connection, m connection.Message) {
	if m.Type != connection.BinaryMessage {
		c.report(fmt.Errorf("%w (%d bytes)", ErrTextFrame, len(m.Text)))
		return
	}

	switch protocol.Classify(m.Binary) {
	case protocol.FrameHeartbeatRequest:
		c.touchHeartbeat()
		c.heartbeatHooks(protocol.HeartbeatRequest, false)
		if err := c.conn.SendBinary(c.ctx, protocol.HeartbeatResponse.Frame()); err != nil {
			c.logger.Warn("heartbeat response failed", "error", err)
			return
		}
		c.heartbeatHooks(protocol.HeartbeatResponse, true)
	case protocol.FrameHeartbeatResponse:
		c.touchHeartbeat()
		c.heartbeatHooks(protocol.HeartbeatResponse, false)
	default:
		c.lastPacket.Store(time.Now().UnixNano())
		c.handleFrame(m.Binary)
	}
}

// OnClosed implements connection.Handler.
func (c *Conn) OnClosed(_ *connection.Connection, e connection.CloseEvent) {
	c.stop()
	for _, h := range c.hooks {
		if h.Closed != nil {
			h.Closed(c, e)
		}
	}
}

// OnError implements connection.Handler.
func (c *Conn) OnError(conn *connection.Connection, err error) {
	if conn.State() == connection.StateClosed {
		c.stop()
	}
	c.report(err)
}

// OnClosing implements connection.Handler.
func (c *Conn) OnClosing(_ *connection.Connection, e connection.CloseEvent) {
	c.stop()
	for _, h := range c.hooks {
		if h.Closing != nil {
			h.Closing(c, e)
		}
	}
}

func (c *Conn) stop() {
	c.sched.StopAll()
	c.cancel()
}

func (c *Conn) report(err error) {
	for _, h := range c.hooks {
		if h.Error != nil {
			h.Error(c, err)
		}
	}
}

func (c *Conn) heartbeatHooks(cmd protocol.Command, outbound bool) {
	for _, h := range c.hooks {
		if h.Heartbeat != nil {
			h.Heartbeat(c, cmd, outbound)
		}
	}
}

func (c *Conn) sendHeartbeat(time.Duration) {
	if c.conn.State() != connection.StateOpen {
		return
	}
	if err := c.conn.SendBinary(c.ctx, protocol.HeartbeatRequest.Frame()); err != nil {
		c.logger.Warn("heartbeat failed", "error", err)
		return
	}
	c.touchHeartbeat()
	c.heartbeatHooks(protocol.HeartbeatRequest, true)
}
