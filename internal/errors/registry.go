package errors

import (
	"errors"
	"sort"

	"github.com/byteflow-dev/byteflow/pkg/async"
	"github.com/byteflow-dev/byteflow/pkg/cache"
	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
	"github.com/byteflow-dev/byteflow/pkg/server"
	"github.com/byteflow-dev/byteflow/pkg/storage"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (BF100-BF199)
	// ============================================

	"BF100": {
		Category:   CategoryConfig,
		Message:    "Invalid byteflow.json",
		Detail:     "The byteflow.json configuration file is malformed.",
		Suggestion: "Check the file for trailing commas and unquoted keys.",
	},
	"BF101": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or has the wrong format.",
	},
	"BF102": {
		Category:   CategoryConfig,
		Message:    "Environment file unreadable",
		Detail:     "The .env file exists but could not be parsed.",
		Suggestion: "Use KEY=value lines; quote values that contain spaces.",
	},
	"BF103": {
		Category:   CategoryConfig,
		Message:    "Missing required configuration",
		Detail:     "A value the command needs is not set in byteflow.json or the environment.",
		Suggestion: "Set it in byteflow.json or with the matching BYTEFLOW_* variable.",
	},

	// ============================================
	// Codec Errors (BF200-BF299)
	// ============================================

	"BF200": {
		Category: CategoryCodec,
		Message:  "Invalid packet",
		Detail:   "The frame is truncated or its body length does not match the envelope.",
	},
	"BF201": {
		Category:   CategoryCodec,
		Message:    "Unknown packet type",
		Detail:     "The frame names a packet type that no registered module defines.",
		Suggestion: "Register the module that defines this packet on both peers.",
	},
	"BF202": {
		Category: CategoryCodec,
		Message:  "Not a registered packet",
		Detail:   "Only values of types defined with DefinePacket and registered with the codec can be packed.",
	},
	"BF203": {
		Category: CategoryCodec,
		Message:  "Nil value",
		Detail:   "A nested entity field is nil. The wire format has no presence marker, so every entity field must be set.",
	},
	"BF204": {
		Category:   CategoryCodec,
		Message:    "Invalid hex input",
		Detail:     "The frame argument is not valid hexadecimal.",
		Suggestion: "Pass the frame as contiguous hex digits, e.g. 01640d...",
	},
	"BF205": {
		Category: CategoryCodec,
		Message:  "Codec limit exceeded",
		Detail:   "The frame declares a collection, allocation or nesting depth above the configured limits.",
	},

	// ============================================
	// Connection Errors (BF300-BF399)
	// ============================================

	"BF300": {
		Category:   CategoryConnection,
		Message:    "No reachable endpoint",
		Detail:     "None of the configured endpoints accepted a TCP connection.",
		Suggestion: "Check that the server is running and the address is correct.",
	},
	"BF301": {
		Category:   CategoryConnection,
		Message:    "Handshake rejected",
		Detail:     "The server refused the WebSocket upgrade.",
		Suggestion: "Pass a valid token with --token, or check the server's rate limit.",
	},
	"BF302": {
		Category: CategoryConnection,
		Message:  "Connection closed",
		Detail:   "The connection was closed before the operation completed.",
	},
	"BF303": {
		Category: CategoryConnection,
		Message:  "Timed out",
		Detail:   "No answer arrived within the timeout.",
	},

	// ============================================
	// Server Errors (BF400-BF499)
	// ============================================

	"BF400": {
		Category:   CategoryServer,
		Message:    "Server failed to start",
		Detail:     "The listener could not be opened.",
		Suggestion: "Another process may already use the address. Pick a different one with --addr.",
	},
	"BF401": {
		Category: CategoryServer,
		Message:  "Invalid server configuration",
	},
	"BF402": {
		Category: CategoryServer,
		Message:  "Cache unavailable",
		Detail:   "The Redis health check failed.",
	},
	"BF403": {
		Category: CategoryServer,
		Message:  "Storage unavailable",
		Detail:   "The S3 bucket could not be reached.",
	},
	"BF404": {
		Category: CategoryServer,
		Message:  "Shutdown incomplete",
		Detail:   "Some connections did not close before the shutdown timeout.",
	},
}

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}

var classes = []struct {
	target error
	code   string
}{
	{protocol.ErrUnknownPacketType, "BF201"},
	{protocol.ErrNotPacket, "BF202"},
	{protocol.ErrNilValue, "BF203"},
	{protocol.ErrCollectionTooLarge, "BF205"},
	{protocol.ErrAllocationTooLarge, "BF205"},
	{protocol.ErrMaxDepthExceeded, "BF205"},
	{protocol.ErrInvalidPacket, "BF200"},
	{protocol.ErrInvalidSize, "BF200"},
	{connection.ErrNoReachableEndpoint, "BF300"},
	{connection.ErrClosed, "BF302"},
	{server.ErrInvalidConfig, "BF401"},
	{server.ErrServerClosed, "BF302"},
	{cache.ErrNoDatabases, "BF103"},
	{storage.ErrEmptyID, "BF101"},
	{async.ErrTimeout, "BF303"},
}

// Classify wraps err in the coded Error matching its cause. Unknown causes
// get no code. An err that already is an *Error is returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var hs *connection.HandshakeError
	if errors.As(err, &hs) {
		return New("BF301").Wrap(err)
	}
	for _, c := range classes {
		if errors.Is(err, c.target) {
			return New(c.code).Wrap(err)
		}
	}
	return &Error{Category: CategoryCLI, Wrapped: err}
}
