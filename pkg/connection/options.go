package connection

import (
	"log/slog"
	"time"

	"golang.org/x/text/encoding"
)

// Option configures a Connection.
type Option func(*options)

type options struct {
	tag          string
	logger       *slog.Logger
	handler      Handler
	text         encoding.Encoding
	dialer       Dialer
	skipProbe    bool
	probeTimeout time.Duration
	probeDelay   time.Duration
	readBuffer   int
	userData     any
}

func defaultOptions() options {
	return options{
		logger:       slog.Default(),
		handler:      HandlerFuncs{},
		probeTimeout: DefaultProbeTimeout,
		probeDelay:   DefaultProbeDelay,
		readBuffer:   4096,
	}
}

// WithTag sets a human-readable label carried in logs.
func WithTag(tag string) Option {
	return func(o *options) {
		o.tag = tag
	}
}

// WithLogger sets the logger. Connection fields are added to it.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHandler sets the notification handler.
func WithHandler(h Handler) Option {
	return func(o *options) {
		if h != nil {
			o.handler = h
		}
	}
}

// WithTextEncoding sets the encoding used to decode text messages and encode
// SendText payloads. The default is UTF-8.
func WithTextEncoding(enc encoding.Encoding) Option {
	return func(o *options) {
		o.text = enc
	}
}

// WithDialer replaces the WebSocket dialer of an initiator.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithSkipProbe makes Connect use the first endpoint without probing.
func WithSkipProbe() Option {
	return func(o *options) {
		o.skipProbe = true
	}
}

// WithProbe sets the per-endpoint probe timeout and the delay after a failed probe.
func WithProbe(timeout, delay time.Duration) Option {
	return func(o *options) {
		o.probeTimeout = timeout
		o.probeDelay = delay
	}
}

// WithReadBufferSize sets the size of the fragment read buffer.
func WithReadBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBuffer = n
		}
	}
}

// WithUserData attaches an application value, see Connection.UserData.
func WithUserData(v any) Option {
	return func(o *options) {
		o.userData = v
	}
}
