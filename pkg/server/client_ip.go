package server

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

// proxySet holds the peers allowed to report the client address through
// Forwarded or X-Forwarded-For. A nil set trusts nobody.
type proxySet struct {
	prefixes []netip.Prefix
}

// newProxySet parses TrustedProxies entries. Plain addresses become single
// host prefixes. Bad entries are logged and skipped, and nil is returned
// when nothing usable remains.
func newProxySet(entries []string, logger *slog.Logger) *proxySet {
	if logger == nil {
		logger = slog.Default()
	}
	var prefixes []netip.Prefix
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.ContainsRune(entry, '/') {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("skipping trusted proxy", "entry", entry, "error", err)
				continue
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			logger.Warn("skipping trusted proxy", "entry", entry, "error", err)
			continue
		}
		addr = addr.WithZone("").Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	if len(prefixes) == 0 {
		return nil
	}
	return &proxySet{prefixes: prefixes}
}

func (p *proxySet) trusts(addr netip.Addr) bool {
	if p == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP is the address used for rate limiting and connection metadata.
func (s *Server) clientIP(r *http.Request) string {
	if addr := resolveClientAddr(r, s.trustedProxies); addr.IsValid() {
		return addr.String()
	}
	return ""
}

// resolveClientAddr walks the forwarding chain from the direct peer back
// towards the client and stops at the first hop it does not trust. When
// every hop is trusted the left-most one wins.
func resolveClientAddr(r *http.Request, proxies *proxySet) netip.Addr {
	if r == nil {
		return netip.Addr{}
	}
	peer := parseHop(r.RemoteAddr)
	if !peer.IsValid() || !proxies.trusts(peer) {
		return peer
	}

	chain := forwardedChain(r.Header.Get("Forwarded"))
	if len(chain) == 0 {
		chain = xForwardedChain(r.Header.Get("X-Forwarded-For"))
	}
	if len(chain) == 0 {
		return peer
	}
	for i := len(chain) - 1; i > 0; i-- {
		if !proxies.trusts(chain[i]) {
			return chain[i]
		}
	}
	return chain[0]
}

// forwardedChain extracts the for= parameters of an RFC 7239 header.
func forwardedChain(header string) []netip.Addr {
	var chain []netip.Addr
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "for") {
				continue
			}
			if addr := parseHop(value); addr.IsValid() {
				chain = append(chain, addr)
			}
		}
	}
	return chain
}

func xForwardedChain(header string) []netip.Addr {
	var chain []netip.Addr
	for _, hop := range strings.Split(header, ",") {
		if addr := parseHop(hop); addr.IsValid() {
			chain = append(chain, addr)
		}
	}
	return chain
}

// parseHop accepts a bare address, host:port, [v6]:port or a quoted form of
// those. Obfuscated identifiers and "unknown" yield the zero Addr.
func parseHop(value string) netip.Addr {
	host := strings.Trim(strings.TrimSpace(value), `"`)
	if host == "" {
		return netip.Addr{}
	}
	if ap, err := netip.ParseAddrPort(host); err == nil {
		return ap.Addr().WithZone("").Unmap()
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.WithZone("").Unmap()
}
