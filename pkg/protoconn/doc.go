// Package protoconn layers the ByteFlow packet protocol over a
// connection.Connection.
//
// A Conn sends heartbeat requests at a fixed interval, answers the peer's
// heartbeat requests, and tracks liveness. Every other binary frame is decoded
// with a protocol.Codec and routed to a typed handler:
//
//	c := protoconn.Dial([]string{"ws://localhost:7400/ws"}, codec,
//	    protoconn.WithHeartbeatInterval(5*time.Second))
//
//	protoconn.Handle(c, func(ctx context.Context, c *protoconn.Conn, p *demo.LoginResponse) error {
//	    log.Printf("logged in: %v", p.Success)
//	    return nil
//	})
//
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	err := c.Send(ctx, &demo.LoginRequest{Username: "ana"})
//
// Heartbeat frames are single bytes (see protocol.HeartbeatRequest) and never
// reach packet handlers. Text frames are protocol violations and are reported
// as ErrTextFrame.
package protoconn
