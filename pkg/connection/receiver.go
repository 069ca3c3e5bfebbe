package connection

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/byteflow-dev/byteflow/pkg/bytestream"
)

// pipeline couples the receive loop and the dispatch loop of one connection
// through an unbounded queue.
type pipeline struct {
	c        *Connection
	q        *queue[event]
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

func newPipeline(c *Connection, parent context.Context) *pipeline {
	ctx, cancel := context.WithCancel(parent)
	return &pipeline{
		c:      c,
		q:      newQueue[event](),
		ctx:    ctx,
		cancel: cancel,
	}
}

// stop cancels the receive loop and completes the queue. Events already
// queued are still dispatched.
func (p *pipeline) stop() {
	p.stopping.Store(true)
	p.cancel()
	p.q.Complete()
}

// receive reads fragments until a whole message is assembled and queues it.
// It returns nil when stopped or when the peer closed, and the read error
// otherwise.
func (p *pipeline) receive() error {
	defer p.q.Complete()
	defer p.cancel()

	t := p.c.transport
	buf := make([]byte, p.c.opts.readBuffer)
	acc := bytestream.NewWriter(bytestream.BigEndian)
	defer acc.Release()

	for {
		f, err := t.ReadFragment(p.ctx, buf)
		if err != nil {
			if p.stopping.Load() || p.ctx.Err() != nil {
				return nil
			}
			p.c.markClosed()
			p.c.logger.Warn("receive failed", "error", err)
			p.q.Push(event{kind: eventError, err: err})
			return err
		}

		if f.Close != nil {
			p.c.markClosed()
			p.c.logger.Info("closed by remote", "status", int(f.Close.Status), "reason", f.Close.Reason)
			p.q.Push(event{kind: eventClosed, close: *f.Close})
			return nil
		}

		_, _ = acc.Write(buf[:f.N])
		if !f.EndOfMessage {
			continue
		}

		msg := Message{Type: f.Type}
		if f.Type == TextMessage {
			text, err := p.decodeText(acc.Bytes())
			acc.Reset()
			if err != nil {
				p.q.Push(event{kind: eventError, err: fmt.Errorf("connection: decode text: %w", err)})
				continue
			}
			msg.Text = text
		} else {
			msg.Binary = acc.Bytes()
			acc.Reset()
		}
		p.c.lastRecv.Store(time.Now().UnixNano())
		p.q.Push(event{kind: eventMessage, msg: msg})
	}
}

func (p *pipeline) decodeText(b []byte) (string, error) {
	if p.c.opts.text == nil {
		return string(b), nil
	}
	out, err := p.c.opts.text.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// dispatch delivers queued events in order until the queue is complete and
// drained.
func (p *pipeline) dispatch() {
	for {
		ev, ok := p.q.Pop()
		if !ok {
			return
		}
		p.deliver(ev)
	}
}

// deliver runs the handler for one event. A handler panic is logged and
// reported to OnError; it does not stop the loop.
func (p *pipeline) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			p.c.logger.Error("handler panic",
				"panic", r,
				"stack", string(debug.Stack()))
			if ev.kind != eventError {
				p.deliver(event{kind: eventError, err: fmt.Errorf("%w: %v", ErrHandlerPanic, r)})
			}
		}
	}()

	h := p.c.opts.handler
	switch ev.kind {
	case eventOpened:
		h.OnOpened(p.c)
	case eventMessage:
		h.OnMessage(p.c, ev.msg)
	case eventClosed:
		h.OnClosed(p.c, ev.close)
	case eventError:
		h.OnError(p.c, ev.err)
	}
}
