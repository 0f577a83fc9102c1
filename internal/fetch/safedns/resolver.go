// Package safedns wraps the platform resolver with SSRF admission checks:
// bounded CNAME following, blocked-range rejection of every resolved
// address, and a dial hook so the HTTP client only ever connects to
// validated addresses.
package safedns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/fetcherr"
	"github.com/edgecomet/fetchmd/internal/safeurl"
)

const (
	// maxCNAMEDepth bounds CNAME chain following.
	maxCNAMEDepth = 5
	// DefaultTimeout applies when no timeout is configured.
	DefaultTimeout = 5 * time.Second
)

// Resolver resolves hostnames and rejects results that map into blocked
// address space or blocked host names, including intermediate CNAMEs.
type Resolver struct {
	classifier *safeurl.Classifier
	timeout    time.Duration
	logger     *zap.Logger

	// lookup hooks, replaceable in tests
	lookupIPAddr func(ctx context.Context, host string) ([]net.IPAddr, error)
	lookupCNAME  func(ctx context.Context, host string) (string, error)
}

// NewResolver builds a resolver. A timeout <= 0 falls back to DefaultTimeout.
func NewResolver(classifier *safeurl.Classifier, timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &net.Resolver{}
	return &Resolver{
		classifier:   classifier,
		timeout:      timeout,
		logger:       logger,
		lookupIPAddr: r.LookupIPAddr,
		lookupCNAME:  r.LookupCNAME,
	}
}

// AssertSafe resolves hostname and returns nil only if every resolved
// address is outside blocked ranges and no followed CNAME matches a
// blocked host. Error codes: EINVAL (invalid hostname), ETIMEOUT
// (deadline), ENODATA (no addresses), EBLOCKED (blocked result).
func (r *Resolver) AssertSafe(ctx context.Context, hostname string) error {
	_, err := r.Resolve(ctx, hostname)
	return err
}

// Resolve performs the full admission check and returns the validated
// addresses in resolver order.
func (r *Resolver) Resolve(ctx context.Context, hostname string) ([]netip.Addr, error) {
	host := strings.ToLower(strings.TrimSuffix(hostname, "."))
	if host == "" || strings.ContainsAny(host, " \t") {
		return nil, fetcherr.DNS(fetcherr.CodeInvalidHost, "Invalid hostname: %q", hostname)
	}

	// IP literals skip DNS entirely; the classifier is the only gate.
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if safeurl.IsBlockedIP(addr) {
			return nil, fetcherr.DNS(fetcherr.CodeBlocked, "Blocked IP range: %s", addr)
		}
		return []netip.Addr{addr}, nil
	}

	if r.classifier.IsBlockedHost(host) {
		return nil, fetcherr.DNS(fetcherr.CodeBlocked, "Blocked host: %s", host)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.checkCNAMEChain(ctx, host); err != nil {
		return nil, err
	}

	addrs, err := r.lookupIPAddr(ctx, host)
	if err != nil {
		return nil, r.mapLookupError(host, err)
	}
	if len(addrs) == 0 {
		return nil, fetcherr.DNS(fetcherr.CodeNoData, "No addresses found for %s", host)
	}

	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if safeurl.IsBlockedIP(addr) {
			return nil, fetcherr.DNS(fetcherr.CodeBlocked,
				"Host %s resolves to blocked IP range: %s", host, addr)
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, fetcherr.DNS(fetcherr.CodeNoData, "No addresses found for %s", host)
	}
	return out, nil
}

// checkCNAMEChain follows CNAMEs up to maxCNAMEDepth with cycle detection
// and applies the host predicate to each intermediate name.
func (r *Resolver) checkCNAMEChain(ctx context.Context, host string) error {
	seen := map[string]struct{}{host: {}}
	current := host

	for depth := 0; depth < maxCNAMEDepth; depth++ {
		target, err := r.lookupCNAME(ctx, current)
		if err != nil {
			// Absence of a CNAME is not a failure; address lookup decides.
			return nil //nolint:nilerr
		}
		target = strings.ToLower(strings.TrimSuffix(target, "."))
		if target == "" || target == current {
			return nil
		}
		if _, ok := seen[target]; ok {
			return fetcherr.DNS(fetcherr.CodeBlocked, "CNAME loop detected for %s", host)
		}
		seen[target] = struct{}{}

		if r.classifier.IsBlockedHost(target) {
			return fetcherr.DNS(fetcherr.CodeBlocked,
				"Host %s aliases blocked host %s", host, target)
		}
		current = target
	}
	return nil
}

func (r *Resolver) mapLookupError(host string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fetcherr.DNS(fetcherr.CodeDNSTimeout, "DNS lookup timed out for %s", host)
	}
	if errors.Is(err, context.Canceled) {
		return fetcherr.Aborted()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return fetcherr.DNS(fetcherr.CodeDNSTimeout, "DNS lookup timed out for %s", host)
		}
		if dnsErr.IsNotFound {
			return fetcherr.DNS(fetcherr.CodeNoData, "No addresses found for %s", host)
		}
	}
	return fetcherr.DNS(fetcherr.CodeNoData, "DNS lookup failed for %s: %v", host, err)
}

// DialContext is the connect-time hook for the HTTP transport: it resolves
// through the admission check and connects to the first reachable
// validated address, so the client never dials an unvalidated IP.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	addrs, err := r.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: r.timeout}
	var lastErr error
	for _, ip := range addrs {
		conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if dialErr == nil {
			return conn, nil
		}
		lastErr = dialErr
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no reachable address for %s", host)
	}
	if r.logger != nil {
		r.logger.Debug("Dial failed for all validated addresses",
			zap.String("host", host), zap.Error(lastErr))
	}
	return nil, lastErr
}
