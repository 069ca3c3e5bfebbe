package protoconn

import (
	"log/slog"
	"time"

	"github.com/byteflow-dev/byteflow/pkg/connection"
)

// DefaultHeartbeatInterval is the heartbeat interval used when none is set.
const DefaultHeartbeatInterval = 10 * time.Second

// Option configures a Conn.
type Option func(*options)

type options struct {
	interval time.Duration
	logger   *slog.Logger
	hooks    []Hooks
	conn     []connection.Option
}

func defaultOptions() options {
	return options{
		interval: DefaultHeartbeatInterval,
		logger:   slog.Default(),
	}
}

// WithHeartbeatInterval sets how often heartbeat requests are sent. Zero
// disables heartbeats; the connection is then never considered alive.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.interval = d
		}
	}
}

// WithLogger sets the logger passed to the underlying connection.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHooks registers lifecycle hooks. It may be given more than once; hooks
// run in registration order.
func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, h)
	}
}

// WithConnectionOptions passes options to the underlying connection, such as
// connection.WithTag or connection.WithDialer. A handler set here is replaced.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(o *options) {
		o.conn = append(o.conn, opts...)
	}
}
