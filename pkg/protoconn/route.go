package protoconn

import (
	"context"
	"fmt"
	"reflect"

	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

// PacketFunc handles a decoded packet. packet is a pointer to the registered
// packet type. A returned error is reported to the Error hooks.
type PacketFunc func(ctx context.Context, c *Conn, packet any) error

// Middleware wraps packet dispatch, e.g. for metrics or tracing.
type Middleware func(next PacketFunc) PacketFunc

// Hooks observe connection lifecycle. Nil fields are ignored. All hooks
// except Closing run on the dispatch goroutine.
type Hooks struct {
	Opened  func(c *Conn)
	Closed  func(c *Conn, e connection.CloseEvent)
	Closing func(c *Conn, e connection.CloseEvent)

	// Error receives transport errors, decode failures, text frames and
	// errors returned by packet handlers.
	Error func(c *Conn, err error)

	// Heartbeat is called for every heartbeat frame sent (outbound) or
	// received.
	Heartbeat func(c *Conn, cmd protocol.Command, outbound bool)
}

// OnPacket sets the handler for packets that have no typed route.
func (c *Conn) OnPacket(fn PacketFunc) {
	c.mu.Lock()
	c.fallback = fn
	c.mu.Unlock()
}

// Use appends middleware to packet dispatch. The first middleware added is
// the outermost.
func (c *Conn) Use(mw ...Middleware) {
	c.mu.Lock()
	c.chain = append(c.chain, mw...)
	c.mu.Unlock()
}

// Handle routes packets of type *T to fn, replacing any previous route for T.
func Handle[T any](c *Conn, fn func(ctx context.Context, c *Conn, packet *T) error) {
	typ := reflect.TypeFor[T]()
	c.mu.Lock()
	c.routes[typ] = func(ctx context.Context, c *Conn, packet any) error {
		p, ok := packet.(*T)
		if !ok {
			return fmt.Errorf("%w: route for %s got %T", protocol.ErrNotPacket, typ, packet)
		}
		return fn(ctx, c, p)
	}
	c.mu.Unlock()
}

// handleFrame decodes a business frame and runs its route. Failures are
// reported, never propagated to the receive pipeline.
func (c *Conn) handleFrame(frame []byte) {
	packet, err := c.codec.Unpack(frame)
	if err != nil {
		c.report(fmt.Errorf("protoconn: decode: %w", err))
		return
	}

	h := c.resolve(reflect.TypeOf(packet).Elem())
	if h == nil {
		c.logger.Debug("packet dropped, no handler", "type", fmt.Sprintf("%T", packet))
		return
	}
	if err := h(c.ctx, c, packet); err != nil {
		c.report(err)
	}
}

// resolve returns the route for typ wrapped in the middleware chain, or nil.
func (c *Conn) resolve(typ reflect.Type) PacketFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.routes[typ]
	if !ok {
		h = c.fallback
	}
	if h == nil {
		return nil
	}
	for i := len(c.chain) - 1; i >= 0; i-- {
		h = c.chain[i](h)
	}
	return h
}
