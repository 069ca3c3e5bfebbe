package server

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestDefaultServerConfig(t *testing.T) {
	config := DefaultServerConfig()

	if config.Address == "" {
		t.Error("Address should not be empty")
	}
	if config.Path != "/ws" {
		t.Errorf("Path = %q, want /ws", config.Path)
	}
	if len(config.Subprotocols) != 1 || config.Subprotocols[0] != "byte_proto" {
		t.Errorf("Subprotocols = %v, want [byte_proto]", config.Subprotocols)
	}
	if config.HeartbeatInterval != 10*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 10s", config.HeartbeatInterval)
	}
	if config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 {
		t.Error("buffer sizes should be positive")
	}
	if config.ShutdownTimeout <= 0 {
		t.Error("ShutdownTimeout should be positive")
	}
	if config.CheckOrigin == nil {
		t.Error("CheckOrigin should default to SameOriginCheck")
	}
	if err := config.ValidateConfig(); err != nil {
		t.Errorf("ValidateConfig() = %v, want nil", err)
	}
}

func TestServerConfigWithDefaults(t *testing.T) {
	config := (&ServerConfig{Address: ":9000", HeartbeatInterval: 3 * time.Second}).withDefaults()

	if config.Address != ":9000" {
		t.Errorf("Address = %q, want :9000", config.Address)
	}
	if config.SweepInterval != 3*time.Second {
		t.Errorf("SweepInterval = %v, want HeartbeatInterval", config.SweepInterval)
	}
	if config.Path != "/ws" || config.RateBurst != 20 || config.MaxMessageSize == 0 {
		t.Errorf("defaults not applied: %+v", config)
	}

	if got := (*ServerConfig)(nil).withDefaults(); got.Address != ":5100" {
		t.Errorf("nil config Address = %q, want :5100", got.Address)
	}
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config *ServerConfig
	}{
		{"negative heartbeat", &ServerConfig{HeartbeatInterval: -time.Second}},
		{"negative sweep", &ServerConfig{SweepInterval: -time.Second}},
		{"negative max", &ServerConfig{MaxConnections: -1}},
		{"negative rate", &ServerConfig{RateLimit: -1}},
		{"relative path", &ServerConfig{Path: "ws"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.config.ValidateConfig(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ValidateConfig() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestServerConfigClone(t *testing.T) {
	config := DefaultServerConfig().WithJWTSecret([]byte("s3cret"))
	config.TrustedProxies = []string{"10.0.0.1"}

	clone := config.Clone()
	clone.JWTSecret[0] = 'x'
	clone.TrustedProxies[0] = "10.0.0.2"
	clone.Subprotocols[0] = "other"

	if string(config.JWTSecret) != "s3cret" {
		t.Error("Clone shares JWTSecret")
	}
	if config.TrustedProxies[0] != "10.0.0.1" || config.Subprotocols[0] != "byte_proto" {
		t.Error("Clone shares slices")
	}
	if (*ServerConfig)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestServerConfigBuilders(t *testing.T) {
	config := DefaultServerConfig().
		WithAddress(":7000").
		WithHeartbeatInterval(time.Second).
		WithMaxConnections(5).
		WithRateLimit(2.5, 4)

	if config.Address != ":7000" || config.HeartbeatInterval != time.Second ||
		config.MaxConnections != 5 || config.RateLimit != 2.5 || config.RateBurst != 4 {
		t.Errorf("builders not applied: %+v", config)
	}
}

func TestSameOriginCheck(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"https://example.com", "example.com", true},
		{"http://localhost:5100", "localhost:5100", true},
		{"https://evil.com", "example.com", false},
		{"https://example.com:8443", "example.com", false},
		{"://bad", "example.com", false},
		{"https://example.com", "", false},
	}
	for _, tc := range tests {
		r := &http.Request{Header: http.Header{}, Host: tc.host}
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := SameOriginCheck(r); got != tc.want {
			t.Errorf("SameOriginCheck(origin=%q, host=%q) = %v, want %v", tc.origin, tc.host, got, tc.want)
		}
	}
}
