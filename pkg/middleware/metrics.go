package middleware

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
	"github.com/byteflow-dev/byteflow/pkg/protoconn"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "byteflow").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for packet handling duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "byteflow",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics collects Prometheus metrics for protocol connections.
//
// Metrics collected:
//   - byteflow_packets_total: packets handled, by packet type and status
//   - byteflow_packet_duration_seconds: packet handler duration, by packet type
//   - byteflow_active_connections: currently open connections
//   - byteflow_connections_total: connections opened
//   - byteflow_heartbeats_total: heartbeat frames, by command and direction
//   - byteflow_connection_errors_total: reported errors, by category
//   - byteflow_broadcasts_total: packets broadcast, see RecordBroadcast
//   - byteflow_upgrades_rejected_total: refused upgrade requests, by reason
type Metrics struct {
	packetsTotal      *prometheus.CounterVec
	packetDuration    *prometheus.HistogramVec
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	heartbeats        *prometheus.CounterVec
	connErrors        *prometheus.CounterVec
	broadcasts        prometheus.Counter
	rejected          *prometheus.CounterVec

	open sync.Map // connection ID -> struct{}
}

// NewMetrics registers the metrics with the configured registry. Registering
// twice with the same registry panics, as with promauto.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		packetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_total",
			Help:        "Total number of packets handled",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "status"}),

		packetDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packet_duration_seconds",
			Help:        "Packet handler duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"type"}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_connections",
			Help:        "Number of open protocol connections",
			ConstLabels: config.ConstLabels,
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_total",
			Help:        "Total number of protocol connections opened",
			ConstLabels: config.ConstLabels,
		}),

		heartbeats: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "heartbeats_total",
			Help:        "Heartbeat frames sent and received",
			ConstLabels: config.ConstLabels,
		}, []string{"command", "direction"}),

		connErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_errors_total",
			Help:        "Errors reported by protocol connections",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "broadcasts_total",
			Help:        "Packets delivered by broadcast",
			ConstLabels: config.ConstLabels,
		}),

		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "upgrades_rejected_total",
			Help:        "WebSocket upgrade requests refused",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),
	}
}

// Middleware times every packet handler and counts packets by type and
// outcome.
func (m *Metrics) Middleware() protoconn.Middleware {
	return func(next protoconn.PacketFunc) protoconn.PacketFunc {
		return func(ctx context.Context, c *protoconn.Conn, packet any) error {
			typ := packetTypeName(c, packet)

			start := time.Now()
			err := next(ctx, c, packet)
			m.packetDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())

			status := "success"
			if err != nil {
				status = "error"
			}
			m.packetsTotal.WithLabelValues(typ, status).Inc()
			return err
		}
	}
}

// Hooks returns connection hooks that maintain the connection, heartbeat and
// error metrics.
func (m *Metrics) Hooks() protoconn.Hooks {
	return protoconn.Hooks{
		Opened: func(c *protoconn.Conn) {
			m.connectionsTotal.Inc()
			if c.Connection().State() == connection.StateClosed {
				return
			}
			m.open.Store(c.ID(), struct{}{})
			m.activeConnections.Inc()
		},
		Closing: func(c *protoconn.Conn, _ connection.CloseEvent) {
			m.connectionClosed(c)
		},
		Closed: func(c *protoconn.Conn, _ connection.CloseEvent) {
			m.connectionClosed(c)
		},
		Error: func(c *protoconn.Conn, err error) {
			m.connErrors.WithLabelValues(categorizeError(err)).Inc()
			if c.Connection().State() == connection.StateClosed {
				m.connectionClosed(c)
			}
		},
		Heartbeat: func(_ *protoconn.Conn, cmd protocol.Command, outbound bool) {
			direction := "in"
			if outbound {
				direction = "out"
			}
			m.heartbeats.WithLabelValues(cmd.String(), direction).Inc()
		},
	}
}

// connectionClosed decrements the gauge once per connection, on the first
// hook that observes it closed.
func (m *Metrics) connectionClosed(c *protoconn.Conn) {
	if _, ok := m.open.LoadAndDelete(c.ID()); ok {
		m.activeConnections.Dec()
	}
}

// RecordBroadcast records a packet delivered to n connections.
func (m *Metrics) RecordBroadcast(n int) {
	m.broadcasts.Add(float64(n))
}

// RecordRejected records a refused upgrade request.
func (m *Metrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// categorizeError returns a low-cardinality category for err.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, protoconn.ErrTextFrame):
		return "text_frame"
	case protocol.IsFraming(err):
		return "framing"
	case errors.Is(err, connection.ErrHandlerPanic):
		return "panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, new(*protocol.Error)):
		return "decode"
	default:
		return "internal"
	}
}

func packetTypeName(c *protoconn.Conn, packet any) string {
	if d, ok := c.Codec().Registry().Lookup(reflect.TypeOf(packet)); ok {
		return d.Name()
	}
	return fmt.Sprintf("%T", packet)
}
