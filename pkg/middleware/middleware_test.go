package middleware

import (
	"context"
	"testing"

	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
	"github.com/byteflow-dev/byteflow/pkg/protoconn"
)

type testOrder struct {
	ID    int64
	Item  string
	Count uint16
}

var testOrderSchema = protocol.DefinePacket(42, "Order",
	protocol.Field(1, "ID", protocol.Int64(), func(p *testOrder) *int64 { return &p.ID }),
	protocol.Field(2, "Item", protocol.String(), func(p *testOrder) *string { return &p.Item }),
	protocol.Field(3, "Count", protocol.Uint16(), func(p *testOrder) *uint16 { return &p.Count }),
).WithVersion(2)

// idleTransport is a Transport that never delivers anything.
type idleTransport struct{}

func (idleTransport) ReadFragment(ctx context.Context, _ []byte) (connection.Fragment, error) {
	<-ctx.Done()
	return connection.Fragment{}, ctx.Err()
}

func (idleTransport) WriteMessage(context.Context, connection.MessageType, []byte) error { return nil }

func (idleTransport) Close(context.Context, connection.CloseStatus, string) error { return nil }

func (idleTransport) Release() error { return nil }

func (idleTransport) RemoteAddr() string { return "10.0.0.7:5100" }

func (idleTransport) Subprotocol() string { return connection.DefaultSubprotocol }

func newTestConn(t *testing.T, opts ...protoconn.Option) *protoconn.Conn {
	t.Helper()
	reg := protocol.NewRegistry()
	if err := reg.Register(protocol.NewModule("test", testOrderSchema)); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	c, err := protoconn.Accept(idleTransport{}, protocol.NewCodec(reg), opts...)
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	t.Cleanup(func() { _ = c.Release() })
	return c
}
