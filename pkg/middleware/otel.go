package middleware

import (
	"context"
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/byteflow-dev/byteflow/pkg/protoconn"
)

// Default tracer name for ByteFlow applications.
const defaultTracerName = "byteflow"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "byteflow").
	TracerName string

	// IncludeTag includes the connection tag in traces.
	// Enabled by default.
	IncludeTag bool

	// IncludeEndpoint includes the remote endpoint in traces.
	// May contain client addresses - disabled by default.
	IncludeEndpoint bool

	// Filter determines which packets to trace.
	// Return true to trace the packet, false to skip.
	// If nil, all packets are traced.
	Filter func(packet any) bool

	// AttributeExtractor extracts custom attributes from a packet.
	// Called for each traced packet.
	AttributeExtractor func(c *protoconn.Conn, packet any) []attribute.KeyValue

	// TracerProvider overrides the global tracer provider.
	TracerProvider trace.TracerProvider

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeTag enables/disables including the connection tag in traces.
func WithIncludeTag(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeTag = include
	}
}

// WithIncludeEndpoint enables including the remote endpoint in traces.
func WithIncludeEndpoint(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeEndpoint = include
	}
}

// WithPacketFilter sets a filter function for packets.
func WithPacketFilter(filter func(packet any) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(c *protoconn.Conn, packet any) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// WithTracerProvider sets the tracer provider used instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
		IncludeTag: true,
	}
}

func resolveOTelConfig(opts []OTelOption) OTelConfig {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	config.tracer = tp.Tracer(config.TracerName)
	return config
}

// OpenTelemetry creates middleware that traces every packet handler.
//
// The middleware:
//   - Creates a span per packet named "byteflow.packet <Type>"
//   - Passes the span context to the handler's ctx
//   - Records handler errors and sets span status
//
// Example:
//
//	conn.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("chat-server"),
//	))
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given. Configure it in main() before serving:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) protoconn.Middleware {
	config := resolveOTelConfig(opts)

	return func(next protoconn.PacketFunc) protoconn.PacketFunc {
		return func(ctx context.Context, c *protoconn.Conn, packet any) error {
			if config.Filter != nil && !config.Filter(packet) {
				return next(ctx, c, packet)
			}

			attrs := []attribute.KeyValue{
				attribute.String("byteflow.conn_id", c.ID()),
			}
			name := fmt.Sprintf("%T", packet)
			if d, ok := c.Codec().Registry().Lookup(reflect.TypeOf(packet)); ok {
				name = d.Name()
				attrs = append(attrs,
					attribute.Int("byteflow.packet_id", d.PacketType()),
					attribute.Int("byteflow.packet_version", int(d.Version())),
				)
			}
			attrs = append(attrs, attribute.String("byteflow.packet_type", name))
			attrs = append(attrs, connAttributes(config, c)...)
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(c, packet)...)
			}

			spanCtx, span := config.tracer.Start(ctx, "byteflow.packet "+name,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			err := next(spanCtx, c, packet)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}

// TraceConnect connects c inside a "byteflow.connect" client span.
func TraceConnect(ctx context.Context, c *protoconn.Conn, opts ...OTelOption) error {
	config := resolveOTelConfig(opts)

	ctx, span := config.tracer.Start(ctx, "byteflow.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("byteflow.conn_id", c.ID())),
	)
	defer span.End()

	if err := c.Connect(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(connAttributes(config, c)...)
	span.SetStatus(codes.Ok, "")
	return nil
}

func connAttributes(config OTelConfig, c *protoconn.Conn) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	conn := c.Connection()
	if config.IncludeTag && conn.Tag() != "" {
		attrs = append(attrs, attribute.String("byteflow.tag", conn.Tag()))
	}
	if config.IncludeEndpoint {
		attrs = append(attrs, attribute.String("byteflow.endpoint", conn.Endpoint()))
	}
	return attrs
}

// SpanFromContext retrieves the current trace span from a packet handler's
// context.
//
// Example:
//
//	protoconn.Handle(conn, func(ctx context.Context, c *protoconn.Conn, p *demo.LoginRequest) error {
//	    middleware.SpanFromContext(ctx).SetAttributes(attribute.String("user", p.Username))
//	    return nil
//	})
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
