package connection

import (
	"context"

	"github.com/gorilla/websocket"
)

// MessageType is the payload type of a message. Values match the WebSocket
// opcodes used by gorilla/websocket.
type MessageType int

const (
	TextMessage   MessageType = websocket.TextMessage
	BinaryMessage MessageType = websocket.BinaryMessage
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "Text"
	case BinaryMessage:
		return "Binary"
	default:
		return "Unknown"
	}
}

// CloseStatus is a WebSocket close code.
type CloseStatus int

const (
	CloseNormal          CloseStatus = websocket.CloseNormalClosure
	CloseGoingAway       CloseStatus = websocket.CloseGoingAway
	CloseProtocolError   CloseStatus = websocket.CloseProtocolError
	CloseUnsupportedData CloseStatus = websocket.CloseUnsupportedData
	CloseNoStatus        CloseStatus = websocket.CloseNoStatusReceived
	CloseAbnormal        CloseStatus = websocket.CloseAbnormalClosure
	ClosePolicyViolation CloseStatus = websocket.ClosePolicyViolation
	CloseInternalError   CloseStatus = websocket.CloseInternalServerErr
)

// Fragment is the result of one transport read.
type Fragment struct {
	Type         MessageType
	N            int         // bytes written into the read buffer
	EndOfMessage bool        // the fragment completes a logical message
	Close        *CloseEvent // set when the peer closed; other fields are zero
}

// Transport is a duplex message channel such as a WebSocket.
//
// ReadFragment is called from a single goroutine. WriteMessage and Close may
// be called concurrently with each other and with ReadFragment.
type Transport interface {
	// ReadFragment reads the next part of the current message into buf.
	ReadFragment(ctx context.Context, buf []byte) (Fragment, error)

	// WriteMessage writes one complete message.
	WriteMessage(ctx context.Context, t MessageType, data []byte) error

	// Close starts the closing handshake.
	Close(ctx context.Context, status CloseStatus, reason string) error

	// Release frees the underlying connection.
	Release() error

	// RemoteAddr returns the peer address.
	RemoteAddr() string

	// Subprotocol returns the negotiated subprotocol.
	Subprotocol() string
}

// Dialer opens initiator transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}
