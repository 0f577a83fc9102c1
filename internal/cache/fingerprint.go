// Package cache holds transformed fetch artifacts in process memory,
// keyed by fingerprint, with insertion-order eviction and synchronous
// update notifications.
package cache

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NamespaceMarkdown is the namespace for markdown artifacts, the only one
// served over the download route.
const NamespaceMarkdown = "markdown"

// Fingerprint identifies a cacheable fetch. Hash is hex, with a dotted
// variation suffix when the request carried variants.
type Fingerprint struct {
	Namespace string
	Hash      string
}

// NewFingerprint derives the fingerprint for (namespace, url, variation).
// The same triple always yields the same fingerprint; variation keys must
// already be a stable serialization.
func NewFingerprint(namespace, normalizedURL, variation string) Fingerprint {
	hash := fmt.Sprintf("%016x", xxhash.Sum64String(normalizedURL))
	if variation != "" {
		hash += fmt.Sprintf(".%016x", xxhash.Sum64String(variation))
	}
	return Fingerprint{Namespace: namespace, Hash: hash}
}

// String renders "namespace:hash", the map key and wire form.
func (f Fingerprint) String() string {
	return f.Namespace + ":" + f.Hash
}

// URLHash is the URL-derived component without the variation suffix.
func (f Fingerprint) URLHash() string {
	if i := strings.IndexByte(f.Hash, '.'); i >= 0 {
		return f.Hash[:i]
	}
	return f.Hash
}

var hashRe = regexp.MustCompile(`^[0-9a-f.]{8,64}$`)

// ParseFingerprint splits a "namespace:hash" string and validates the hash
// shape (lowercase hex plus dots, 8 to 64 characters).
func ParseFingerprint(s string) (Fingerprint, error) {
	namespace, hash, ok := strings.Cut(s, ":")
	if !ok || namespace == "" {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint %q", s)
	}
	if !hashRe.MatchString(hash) {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint hash %q", hash)
	}
	return Fingerprint{Namespace: namespace, Hash: hash}, nil
}

// ValidHash reports whether a caller-supplied hash string has the expected
// shape. Used by the download route before any lookup.
func ValidHash(hash string) bool {
	return hashRe.MatchString(hash)
}
