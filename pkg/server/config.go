package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protoconn"
)

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":5100" or "localhost:5100").
	// Default: ":5100".
	Address string

	// Path is the route that accepts WebSocket upgrades.
	// Default: "/ws".
	Path string

	// WebSocket buffer sizes

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// Subprotocols the server accepts, in order of preference.
	// Default: ["byte_proto"].
	Subprotocols []string

	// Connection configuration

	// HeartbeatInterval is the interval between heartbeat requests sent to
	// each peer. Zero disables heartbeats and the liveness sweep.
	// Default: 10 seconds.
	HeartbeatInterval time.Duration

	// SweepInterval is how often connections are checked for liveness.
	// Default: HeartbeatInterval.
	SweepInterval time.Duration

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 4MB.
	MaxMessageSize int64

	// WriteTimeout bounds each WebSocket write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HTTP server timeouts

	// ReadHeaderTimeout is the maximum time to read request headers.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// IdleTimeout is the keep-alive timeout for idle HTTP connections.
	// Default: 60 seconds.
	IdleTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// Limits

	// MaxConnections is the maximum number of concurrent connections.
	// 0 means no limit.
	MaxConnections int

	// RateLimit is the number of upgrade attempts per second allowed for a
	// single client IP. 0 disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for RateLimit.
	// Default: 20.
	RateBurst int

	// Security

	// JWTSecret is the HMAC secret bearer tokens are verified with.
	// If empty, upgrades are not authenticated.
	JWTSecret []byte

	// TrustedProxies lists trusted reverse proxy IPs or CIDRs whose
	// Forwarded and X-Forwarded-For headers are honored for rate limiting.
	// Default: nil (don't trust proxy headers).
	TrustedProxies []string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":5100",
		Path:              "/ws",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		Subprotocols:      []string{connection.DefaultSubprotocol},
		HeartbeatInterval: protoconn.DefaultHeartbeatInterval,
		MaxMessageSize:    4 * 1024 * 1024,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		RateBurst:         20,
	}
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
// Requests without an Origin header (non-browser clients) are allowed.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.JWTSecret != nil {
		clone.JWTSecret = append([]byte(nil), c.JWTSecret...)
	}
	clone.Subprotocols = append([]string(nil), c.Subprotocols...)
	clone.TrustedProxies = append([]string(nil), c.TrustedProxies...)
	return &clone
}

// withDefaults returns a copy with every unset field filled from
// DefaultServerConfig.
func (c *ServerConfig) withDefaults() *ServerConfig {
	defaults := DefaultServerConfig()
	if c == nil {
		return defaults
	}
	config := c.Clone()
	if config.Address == "" {
		config.Address = defaults.Address
	}
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = defaults.ReadBufferSize
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = defaults.WriteBufferSize
	}
	if config.CheckOrigin == nil {
		config.CheckOrigin = defaults.CheckOrigin
	}
	if len(config.Subprotocols) == 0 {
		config.Subprotocols = defaults.Subprotocols
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = config.HeartbeatInterval
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.ReadHeaderTimeout == 0 {
		config.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.RateBurst == 0 {
		config.RateBurst = defaults.RateBurst
	}
	return config
}

// ValidateConfig reports configuration values that cannot work.
func (c *ServerConfig) ValidateConfig() error {
	var errs []error
	if c.HeartbeatInterval < 0 {
		errs = append(errs, fmt.Errorf("HeartbeatInterval must not be negative, got %v", c.HeartbeatInterval))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("SweepInterval must not be negative, got %v", c.SweepInterval))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("MaxConnections must not be negative, got %d", c.MaxConnections))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("RateLimit must not be negative, got %v", c.RateLimit))
	}
	if c.Path != "" && c.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("Path must start with '/', got %q", c.Path))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// WithAddress sets the server address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithHeartbeatInterval sets the heartbeat interval and returns the config for chaining.
func (c *ServerConfig) WithHeartbeatInterval(d time.Duration) *ServerConfig {
	c.HeartbeatInterval = d
	return c
}

// WithMaxConnections sets the connection limit and returns the config for chaining.
func (c *ServerConfig) WithMaxConnections(max int) *ServerConfig {
	c.MaxConnections = max
	return c
}

// WithRateLimit sets the per-IP upgrade rate and returns the config for chaining.
func (c *ServerConfig) WithRateLimit(perSecond float64, burst int) *ServerConfig {
	c.RateLimit = perSecond
	c.RateBurst = burst
	return c
}

// WithJWTSecret sets the token secret and returns the config for chaining.
func (c *ServerConfig) WithJWTSecret(secret []byte) *ServerConfig {
	c.JWTSecret = secret
	return c
}
