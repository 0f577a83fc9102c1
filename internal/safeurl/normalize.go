package safeurl

import (
	"net/url"
	"strings"

	"github.com/edgecomet/fetchmd/internal/fetcherr"
)

// NormalizeResult is the canonical internal form of a caller URL.
type NormalizeResult struct {
	URL      string // normalized URL
	Hostname string // lower-cased host without port or trailing dot
}

// Normalizer validates and canonicalizes caller-supplied URLs. A URL that
// survives Normalize satisfies the host admission predicate at creation
// time: http/https scheme, no userinfo, host neither a blocked name, a
// blocked suffix, nor a blocked IP literal.
type Normalizer struct {
	classifier   *Classifier
	maxURLLength int
}

// NewNormalizer builds a normalizer around the given classifier.
// maxURLLength <= 0 disables the length check.
func NewNormalizer(classifier *Classifier, maxURLLength int) *Normalizer {
	return &Normalizer{classifier: classifier, maxURLLength: maxURLLength}
}

// Normalize parses, validates and canonicalizes rawURL. All failures are
// validation errors (HTTP 400, code VALIDATION_ERROR).
func (n *Normalizer) Normalize(rawURL string) (*NormalizeResult, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fetcherr.Validation("URL is required")
	}
	if n.maxURLLength > 0 && len(rawURL) > n.maxURLLength {
		return nil, fetcherr.Validation("URL exceeds maximum length of %d characters", n.maxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fetcherr.Validation("Invalid URL: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fetcherr.Validation("Unsupported protocol: only http and https are allowed")
	}
	if u.User != nil {
		return nil, fetcherr.Validation("URLs with embedded credentials are not allowed")
	}

	hostname := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if hostname == "" {
		return nil, fetcherr.Validation("Invalid URL: missing hostname")
	}

	if IsBlockedIPLiteral(hostname) {
		return nil, fetcherr.Validation("Blocked IP range: %s", hostname)
	}
	if n.classifier.IsBlockedHost(hostname) {
		return nil, fetcherr.Validation("Blocked host: %s", hostname)
	}

	// Canonicalize: lower-case host, no trailing dot, keep the port.
	port := u.Port()
	if port != "" {
		if strings.HasPrefix(u.Host, "[") || strings.Contains(hostname, ":") {
			u.Host = "[" + hostname + "]:" + port
		} else {
			u.Host = hostname + ":" + port
		}
	} else if strings.Contains(hostname, ":") {
		u.Host = "[" + hostname + "]"
	} else {
		u.Host = hostname
	}

	return &NormalizeResult{URL: u.String(), Hostname: hostname}, nil
}
