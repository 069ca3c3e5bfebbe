package connection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/byteflow-dev/byteflow/pkg/async"
)

// DefaultSubprotocol is the WebSocket subprotocol ByteFlow peers negotiate.
const DefaultSubprotocol = "byte_proto"

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	// WriteTimeout bounds each write. Zero means no deadline.
	WriteTimeout time.Duration

	// ReadLimit is the maximum message size in bytes. Zero means no limit.
	ReadLimit int64

	// KeepAlive sends WebSocket ping control frames at this interval.
	// Zero disables them.
	KeepAlive time.Duration
}

// DefaultWebSocketConfig returns a WebSocketConfig with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteTimeout: 10 * time.Second,
		ReadLimit:    4 * 1024 * 1024,
	}
}

// WebSocketTransport adapts a gorilla/websocket connection to Transport.
type WebSocketTransport struct {
	conn   *websocket.Conn
	config WebSocketConfig

	writeLock *async.Lock
	cur       io.Reader // reader of the message being received
	curType   MessageType

	releaseOnce sync.Once
	done        chan struct{}
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn, config WebSocketConfig) *WebSocketTransport {
	t := &WebSocketTransport{
		conn:      conn,
		config:    config,
		writeLock: async.NewLock(),
		done:      make(chan struct{}),
	}
	if config.ReadLimit > 0 {
		conn.SetReadLimit(config.ReadLimit)
	}
	if config.KeepAlive > 0 {
		go t.keepAlive(config.KeepAlive)
	}
	return t
}

// Conn returns the underlying gorilla connection.
func (t *WebSocketTransport) Conn() *websocket.Conn {
	return t.conn
}

// ReadFragment reads the next part of the current message. Cancelling ctx
// interrupts a blocked read by expiring the read deadline.
func (t *WebSocketTransport) ReadFragment(ctx context.Context, buf []byte) (Fragment, error) {
	if err := ctx.Err(); err != nil {
		return Fragment{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if t.cur == nil {
		mt, r, err := t.conn.NextReader()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return Fragment{Close: &CloseEvent{
					Status:   CloseStatus(ce.Code),
					Reason:   ce.Text,
					ByRemote: true,
				}}, nil
			}
			return Fragment{}, err
		}
		t.cur = r
		t.curType = MessageType(mt)
	}

	n, err := t.cur.Read(buf)
	f := Fragment{Type: t.curType, N: n}
	switch {
	case errors.Is(err, io.EOF):
		f.EndOfMessage = true
		t.cur = nil
		return f, nil
	case err != nil:
		t.cur = nil
		return f, err
	}
	return f, nil
}

// WriteMessage writes one message. Writes are serialized.
func (t *WebSocketTransport) WriteMessage(ctx context.Context, mt MessageType, data []byte) error {
	release, err := t.writeLock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if t.config.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	}
	return t.conn.WriteMessage(int(mt), data)
}

// Close sends a close control frame with status and reason.
func (t *WebSocketTransport) Close(ctx context.Context, status CloseStatus, reason string) error {
	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	msg := websocket.FormatCloseMessage(int(status), reason)
	return t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
}

// Release closes the network connection and stops the keep-alive pinger.
func (t *WebSocketTransport) Release() error {
	var err error
	t.releaseOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer address.
func (t *WebSocketTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// Subprotocol returns the negotiated subprotocol.
func (t *WebSocketTransport) Subprotocol() string {
	return t.conn.Subprotocol()
}

func (t *WebSocketTransport) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

// WebSocketDialer dials WebSocket endpoints with gorilla/websocket.
type WebSocketDialer struct {
	// Header is sent with the opening handshake, e.g. Authorization.
	Header http.Header

	// Subprotocols requested by the client. Defaults to DefaultSubprotocol.
	Subprotocols []string

	// HandshakeTimeout bounds the opening handshake. Defaults to 10s.
	HandshakeTimeout time.Duration

	// Config configures the transports created by Dial.
	Config WebSocketConfig
}

// NewWebSocketDialer creates a dialer with default settings.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		Header:           http.Header{},
		Subprotocols:     []string{DefaultSubprotocol},
		HandshakeTimeout: 10 * time.Second,
		Config:           DefaultWebSocketConfig(),
	}
}

// Dial performs the opening handshake with url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     d.Subprotocols,
	}
	conn, resp, err := wd.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{URL: url, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	return NewWebSocketTransport(conn, d.Config), nil
}
