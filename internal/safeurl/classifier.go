// Package safeurl implements the SSRF guard: IP range classification, URL
// normalization with host admission, raw-URL rewriting for source-hosting
// sites, and URL redaction for logs.
package safeurl

import (
	"fmt"
	"net/netip"
	"strings"
)

// blockedV4 and blockedV6 contain all private, reserved and special-use
// ranges the fetcher must never target.
var (
	blockedV4 []netip.Prefix
	blockedV6 []netip.Prefix
)

func init() {
	v4 := []string{
		"0.0.0.0/8",      // "this" network
		"10.0.0.0/8",     // RFC 1918
		"100.64.0.0/10",  // CGNAT (RFC 6598)
		"127.0.0.0/8",    // loopback
		"169.254.0.0/16", // link-local
		"172.16.0.0/12",  // RFC 1918
		"192.168.0.0/16", // RFC 1918
		"224.0.0.0/4",    // multicast
		"240.0.0.0/4",    // reserved
	}
	v6 := []string{
		"::/128",          // unspecified
		"::1/128",         // loopback
		"64:ff9b::/96",    // NAT64 (RFC 6052)
		"64:ff9b:1::/48",  // local-use NAT64 (RFC 8215)
		"2001::/32",       // Teredo
		"2002::/16",       // 6to4
		"fc00::/7",        // unique local
		"fe80::/10",       // link-local
		"ff00::/8",        // multicast
	}
	for _, cidr := range v4 {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blocked IPv4 ranges: %s", cidr))
		}
		blockedV4 = append(blockedV4, p)
	}
	for _, cidr := range v6 {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blocked IPv6 ranges: %s", cidr))
		}
		blockedV6 = append(blockedV6, p)
	}
}

// Classifier decides whether a host or IP literal falls in blocked address
// space. The subnet index is immutable after construction.
type Classifier struct {
	blockedHosts    map[string]struct{}
	blockedSuffixes []string
}

// NewClassifier builds a classifier from the configured blocked host names
// (exact, case-insensitive) and suffixes (e.g. ".local", ".internal").
func NewClassifier(blockedHosts, blockedSuffixes []string) *Classifier {
	hosts := make(map[string]struct{}, len(blockedHosts))
	for _, h := range blockedHosts {
		hosts[strings.ToLower(strings.TrimSuffix(h, "."))] = struct{}{}
	}
	suffixes := make([]string, 0, len(blockedSuffixes))
	for _, s := range blockedSuffixes {
		s = strings.ToLower(s)
		if s != "" && !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		if s != "" {
			suffixes = append(suffixes, s)
		}
	}
	return &Classifier{blockedHosts: hosts, blockedSuffixes: suffixes}
}

// IsBlockedIP reports whether the address falls in a blocked range.
// IPv4-mapped IPv6 addresses are unwrapped and checked as IPv4.
func IsBlockedIP(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if addr.Is4() {
		for _, p := range blockedV4 {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}
	for _, p := range blockedV6 {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsBlockedHost reports whether hostname is an IP literal in a blocked
// range, an exact blocked host, or carries a blocked suffix. Non-IP input
// that matches nothing yields false; the function is total.
func (c *Classifier) IsBlockedHost(hostname string) bool {
	host := strings.ToLower(strings.TrimSuffix(hostname, "."))
	if host == "" {
		return false
	}
	if _, ok := c.blockedHosts[host]; ok {
		return true
	}
	for _, suffix := range c.blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	// Bracketed IPv6 literals arrive without brackets from url.Hostname(),
	// but tolerate them anyway.
	trimmed := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		return IsBlockedIP(addr)
	}
	return false
}

// IsBlockedIPLiteral reports whether hostname parses as an IP literal in a
// blocked range.
func IsBlockedIPLiteral(hostname string) bool {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(hostname, "["), "]")
	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return false
	}
	return IsBlockedIP(addr)
}
