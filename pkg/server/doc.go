// Package server accepts ByteFlow connections over WebSocket.
//
// A Server upgrades requests on its configured path (default "/ws") with the
// byte_proto subprotocol, wraps each socket in a protoconn.Conn and serves it
// until the peer goes away. Around that it provides:
//
//   - Bearer token authentication (HMAC-signed JWTs, see IssueToken)
//   - Per-IP rate limiting of upgrade attempts
//   - A connection Registry with an optional connection limit
//   - A liveness sweep that closes peers which stopped answering heartbeats
//   - Broadcast of one packet to every open connection
//   - /healthz, /connections and /metrics endpoints
//
// # Example Usage
//
//	srv := server.New(codec, server.DefaultServerConfig().
//	    WithAddress(":5100").
//	    WithJWTSecret(secret),
//	    server.WithMetrics(middleware.NewMetrics(), nil),
//	    server.WithConnSetup(func(c *protoconn.Conn) {
//	        protoconn.Handle(c, onLogin)
//	    }),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// All Server and Registry methods are safe for concurrent use.
package server
