package server

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveClientAddr(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		header  string
		value   string
		proxies []string
		want    string
	}{
		{
			name:    "untrusted peer ignores headers",
			remote:  "198.51.100.10:1234",
			header:  "X-Forwarded-For",
			value:   "203.0.113.5",
			proxies: []string{"203.0.113.1"},
			want:    "198.51.100.10",
		},
		{
			name:    "right-most untrusted hop",
			remote:  "203.0.113.10:1234",
			header:  "X-Forwarded-For",
			value:   "198.51.100.1, 203.0.113.11, 192.0.2.20",
			proxies: []string{"203.0.113.10", "203.0.113.11"},
			want:    "192.0.2.20",
		},
		{
			name:    "all hops trusted",
			remote:  "203.0.113.10:1234",
			header:  "Forwarded",
			value:   "for=192.0.2.1, for=192.0.2.2",
			proxies: []string{"203.0.113.10", "192.0.2.1", "192.0.2.2"},
			want:    "192.0.2.1",
		},
		{
			name:    "prefix and ipv6",
			remote:  "[fd00::1]:443",
			header:  "Forwarded",
			value:   `for="[2001:db8::7]:4711"`,
			proxies: []string{"fd00::/8", "not-an-ip", "10.0.0.0/33"},
			want:    "2001:db8::7",
		},
		{
			name:    "trusted peer without headers",
			remote:  "10.1.2.3:80",
			proxies: []string{"10.0.0.0/8"},
			want:    "10.1.2.3",
		},
		{
			name:   "no proxies configured",
			remote: "192.0.2.9:5000",
			header: "X-Forwarded-For",
			value:  "198.51.100.1",
			want:   "192.0.2.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://localhost/ws", nil)
			req.RemoteAddr = tt.remote
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			got := resolveClientAddr(req, newProxySet(tt.proxies, nil))
			assert.Equal(t, netip.MustParseAddr(tt.want), got)
		})
	}
}

func TestResolveClientAddrBadRemote(t *testing.T) {
	req := httptest.NewRequest("GET", "http://localhost/ws", nil)
	req.RemoteAddr = "pipe"
	assert.False(t, resolveClientAddr(req, nil).IsValid())
	assert.False(t, resolveClientAddr(nil, nil).IsValid())
}

func TestNewProxySetOnlyInvalidEntries(t *testing.T) {
	assert.Nil(t, newProxySet([]string{"", "bogus", "1.2.3.4/99"}, nil))
	assert.Nil(t, newProxySet(nil, nil))
}

func TestProxySetTrusts(t *testing.T) {
	set := newProxySet([]string{"10.0.0.0/8", "192.0.2.7"}, nil)
	require.NotNil(t, set)

	assert.True(t, set.trusts(netip.MustParseAddr("10.200.0.1")))
	assert.True(t, set.trusts(netip.MustParseAddr("::ffff:10.0.0.1")))
	assert.True(t, set.trusts(netip.MustParseAddr("192.0.2.7")))
	assert.False(t, set.trusts(netip.MustParseAddr("192.0.2.8")))
	assert.False(t, set.trusts(netip.Addr{}))
}

func TestParseHop(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.0.2.1", "192.0.2.1"},
		{" 192.0.2.1:8080 ", "192.0.2.1"},
		{`"[2001:db8::1]:80"`, "2001:db8::1"},
		{"[2001:db8::2]", "2001:db8::2"},
		{"fe80::1%eth0", "fe80::1"},
		{"unknown", ""},
		{"_hidden", ""},
	}
	for _, tt := range tests {
		got := parseHop(tt.in)
		if tt.want == "" {
			assert.False(t, got.IsValid(), tt.in)
			continue
		}
		assert.Equal(t, netip.MustParseAddr(tt.want), got, tt.in)
	}
}
