// Package hostgate rejects requests whose Host or Origin header is not
// on the allow-list built at startup, a DNS-rebinding defense for a
// loopback-bound server.
package hostgate

import (
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Gate holds the normalized host allow-list.
type Gate struct {
	allowed map[string]bool
	logger  *zap.Logger
}

// New builds the allow-list from loopback names, the bind host (unless a
// wildcard), and explicit extra entries.
func New(bindHost string, extraHosts []string, logger *zap.Logger) *Gate {
	g := &Gate{
		allowed: map[string]bool{
			"localhost": true,
			"127.0.0.1": true,
			"::1":       true,
		},
		logger: logger,
	}

	bindHost = normalizeEntry(bindHost)
	if bindHost != "" && bindHost != "0.0.0.0" && bindHost != "::" {
		g.allowed[bindHost] = true
	}
	for _, host := range extraHosts {
		if host = normalizeEntry(host); host != "" {
			g.allowed[host] = true
		}
	}
	return g
}

// AllowHost checks a raw Host header value.
func (g *Gate) AllowHost(hostHeader string) bool {
	host := normalizeHostHeader(hostHeader)
	if host == "" {
		return false
	}
	if g.allowed[host] {
		return true
	}
	g.logger.Warn("Host header rejected", zap.String("host", hostHeader))
	return false
}

// AllowOrigin checks an Origin header value. An absent Origin admits.
func (g *Gate) AllowOrigin(originHeader string) bool {
	if originHeader == "" {
		return true
	}
	parsed, err := url.Parse(originHeader)
	if err != nil || parsed.Hostname() == "" {
		g.logger.Warn("Origin header unparseable", zap.String("origin", originHeader))
		return false
	}
	if g.allowed[strings.ToLower(parsed.Hostname())] {
		return true
	}
	g.logger.Warn("Origin header rejected", zap.String("origin", originHeader))
	return false
}

// normalizeHostHeader strips IPv6 brackets, and the port for everything
// that is not a bare IPv6 literal.
func normalizeHostHeader(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "[") {
		// Bracketed IPv6, possibly with a port.
		end := strings.IndexByte(host, ']')
		if end < 0 {
			return ""
		}
		return host[1:end]
	}

	if strings.Count(host, ":") > 1 {
		// Bare IPv6 literal, no port to strip.
		return host
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

func normalizeEntry(host string) string {
	return normalizeHostHeader(host)
}
