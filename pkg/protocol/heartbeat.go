package protocol

// Command is a single-byte control frame that bypasses the packet envelope.
type Command byte

const (
	HeartbeatRequest  Command = 200 // peer asks for a heartbeat response
	HeartbeatResponse Command = 201 // reply to HeartbeatRequest
)

// MinReservedVersion is the first envelope version byte reserved for commands.
// Packet versions must be below it.
const MinReservedVersion = 200

// String returns the string representation of the command.
func (c Command) String() string {
	switch c {
	case HeartbeatRequest:
		return "HeartbeatRequest"
	case HeartbeatResponse:
		return "HeartbeatResponse"
	default:
		return "Unknown"
	}
}

// Frame returns the one byte wire frame of the command.
func (c Command) Frame() []byte {
	return []byte{byte(c)}
}

// FrameClass classifies a binary frame.
type FrameClass uint8

const (
	FramePacket FrameClass = iota
	FrameHeartbeatRequest
	FrameHeartbeatResponse
)

// String returns the string representation of the frame class.
func (fc FrameClass) String() string {
	switch fc {
	case FramePacket:
		return "Packet"
	case FrameHeartbeatRequest:
		return "HeartbeatRequest"
	case FrameHeartbeatResponse:
		return "HeartbeatResponse"
	default:
		return "Unknown"
	}
}

// Classify reports whether frame is a heartbeat request, a heartbeat response,
// or a packet that should go through the codec.
func Classify(frame []byte) FrameClass {
	if len(frame) != 1 {
		return FramePacket
	}
	switch Command(frame[0]) {
	case HeartbeatRequest:
		return FrameHeartbeatRequest
	case HeartbeatResponse:
		return FrameHeartbeatResponse
	default:
		return FramePacket
	}
}

// IsHeartbeatRequest reports whether frame is exactly the heartbeat request.
func IsHeartbeatRequest(frame []byte) bool {
	return Classify(frame) == FrameHeartbeatRequest
}

// IsHeartbeatResponse reports whether frame is exactly the heartbeat response.
func IsHeartbeatResponse(frame []byte) bool {
	return Classify(frame) == FrameHeartbeatResponse
}
