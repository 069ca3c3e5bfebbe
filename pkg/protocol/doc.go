// Package protocol implements the ByteFlow wire codec.
//
// The codec is positional: no field tags are written, so both peers must
// build their schemas from the same declarations. Field order, not
// declaration order, defines the layout.
//
// # Wire Format
//
// Every packet travels in an envelope:
//
//	┌───────────┬──────────────────┬──────────────────┬──────────────────┐
//	│ Version   │ Packet Type      │ Body Length      │ Body             │
//	│ (1 byte)  │ (compressed size)│ (compressed size)│ (length bytes)   │
//	└───────────┴──────────────────┴──────────────────┴──────────────────┘
//
// A compressed size is a tag byte followed by the smallest width that holds
// the value:
//
//   - 0: the value is zero, nothing follows
//   - 1: one unsigned byte follows
//   - 2: an unsigned 16-bit value follows
//   - 3: a signed 32-bit value follows
//
// Heartbeat frames are a single byte, 200 (request) or 201 (response), and
// never carry an envelope. Packet versions 200 and above are reserved.
//
// # Field Encoding
//
//   - Fixed-width scalars: raw bytes in the codec's byte order (big-endian default)
//   - String: compressed byte length + text bytes (UTF-8 default)
//   - Duration: uint32 whole seconds
//   - Time: int64 milliseconds since the Unix epoch
//   - UUID: 16 raw bytes
//   - Nested entity: its fields inlined, no length prefix
//   - Sequence: compressed element count + elements
//
// # Schemas
//
// Types are registered explicitly; nothing is discovered by reflection:
//
//	var LoginRequestSchema = protocol.DefinePacket(100, "LoginRequest",
//		protocol.Field(1, "Account", protocol.String(), func(p *LoginRequest) *string { return &p.Account }),
//		protocol.Field(2, "Token", protocol.String(), func(p *LoginRequest) *string { return &p.Token }),
//	)
//
//	protocol.RegisterTypes(protocol.NewModule("auth", LoginRequestSchema))
//	frame, err := protocol.Pack(&LoginRequest{Account: "a", Token: "t"})
package protocol
