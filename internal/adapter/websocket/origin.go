package websocket

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a socket. Requests
// without an Origin header come from non-browser clients and are let through.
type OriginPolicy struct {
	allowed   map[string]struct{}
	localhost bool
}

// NewOriginPolicy allows the origin of appURL plus any extra origins. With
// allowLocalhost, loopback origins on any port are accepted too.
func NewOriginPolicy(appURL string, extra []string, allowLocalhost bool) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}), localhost: allowLocalhost}
	for _, raw := range append([]string{appURL}, extra...) {
		if origin, ok := normalizeOrigin(raw); ok {
			p.allowed[origin] = struct{}{}
		}
	}
	return p
}

// Check is the upgrader's CheckOrigin hook.
func (p *OriginPolicy) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.Allows(origin) {
		return true
	}
	slog.WarnContext(r.Context(), "WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
	return false
}

func (p *OriginPolicy) Allows(origin string) bool {
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if _, found := p.allowed[normalized]; found {
		return true
	}
	return p.localhost && isLoopback(normalized)
}

// normalizeOrigin reduces a URL to scheme://host[:port], lowercased and with
// the scheme's default port dropped. Only http and https qualify.
func normalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host, true
}

func isLoopback(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
