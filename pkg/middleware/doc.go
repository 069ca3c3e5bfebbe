// Package middleware provides observability for ByteFlow protocol connections.
//
// This package includes:
//   - OpenTelemetry tracing of packet handlers and connects
//   - Prometheus metrics for packets, connections, heartbeats and errors
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware traces every packet handled by a connection.
// Spans carry the connection ID, the packet type and its numeric id.
//
//	conn.Use(middleware.OpenTelemetry())
//
// Configure with options:
//
//	middleware.OpenTelemetry(
//	    middleware.WithTracerName("chat-server"),
//	    middleware.WithIncludeEndpoint(true),
//	    middleware.WithPacketFilter(func(p any) bool {
//	        _, noisy := p.(*demo.SimpleEntity)
//	        return !noisy
//	    }),
//	)
//
// # Prometheus Metrics
//
// Metrics has two parts: a packet Middleware and connection Hooks.
//
//	m := middleware.NewMetrics(middleware.WithNamespace("chat"))
//	conn := protoconn.Dial(urls, codec, protoconn.WithHooks(m.Hooks()))
//	conn.Use(m.Middleware())
//
// Then expose the registry:
//
//	http.Handle("/metrics", promhttp.Handler())
package middleware
