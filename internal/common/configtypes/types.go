// Package configtypes defines the typed configuration tree for fetchmd.
// Values are populated from defaults, then an optional YAML file, then
// environment variables (see the config package).
package configtypes

import (
	"fmt"
	"time"
)

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Auth mode constants
const (
	AuthModeStatic = "static"
	AuthModeOAuth  = "oauth"
)

// Cache compression algorithms
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

// Config is the root configuration for the fetchmd server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Cache     CacheConfig     `yaml:"cache"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Noise     NoiseConfig     `yaml:"noise"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener and admission gates.
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	AllowRemote  bool     `yaml:"allow_remote"`
	AllowedHosts []string `yaml:"allowed_hosts"`

	HeadersTimeout   Duration `yaml:"headers_timeout"`
	RequestTimeout   Duration `yaml:"request_timeout"`
	KeepAliveTimeout Duration `yaml:"keepalive_timeout"`
}

// Listen returns the host:port bind address.
func (s ServerConfig) Listen() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig selects static-token or OAuth-introspection verification.
type AuthConfig struct {
	Mode         string   `yaml:"mode"`
	StaticTokens []string `yaml:"static_tokens"`

	OAuth OAuthConfig `yaml:"oauth"`
}

// OAuthConfig carries the endpoints for token introspection.
type OAuthConfig struct {
	IssuerURL            string   `yaml:"issuer_url"`
	AuthorizationURL     string   `yaml:"authorization_url"`
	TokenURL             string   `yaml:"token_url"`
	IntrospectionURL     string   `yaml:"introspection_url"`
	ClientID             string   `yaml:"client_id"`
	ClientSecret         string   `yaml:"client_secret"`
	RequiredScopes       []string `yaml:"required_scopes"`
	ResourceURL          string   `yaml:"resource_url"`
	IntrospectionTimeout Duration `yaml:"introspection_timeout"`
}

// FetcherConfig configures the safe fetch engine.
type FetcherConfig struct {
	Timeout         Duration `yaml:"timeout"`
	MaxRedirects    int      `yaml:"max_redirects"`
	MaxContentBytes int64    `yaml:"max_content_bytes"`
	UserAgent       string   `yaml:"user_agent"`

	MaxURLLength        int      `yaml:"max_url_length"`
	MaxHTMLSize         int64    `yaml:"max_html_size"`
	MaxInlineChars      int      `yaml:"max_inline_content_chars"` // 0 = unlimited
	DNSTimeout          Duration `yaml:"dns_timeout"`
	Parallelism         int      `yaml:"parallelism"`
	BlockedHosts        []string `yaml:"blocked_hosts"`
	BlockedHostSuffixes []string `yaml:"blocked_host_suffixes"`
}

// CacheConfig configures the in-process artifact cache.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MaxEntries  int    `yaml:"max_entries"`
	TTLSeconds  int    `yaml:"ttl_seconds"` // 0 = no expiry
	Compression string `yaml:"compression"` // none | snappy | lz4
}

// SessionConfig configures session admission and lifetime.
type SessionConfig struct {
	TTL         Duration `yaml:"ttl"`
	InitTimeout Duration `yaml:"init_timeout"`
	MaxSessions int      `yaml:"max_sessions"`
}

// RateLimitConfig configures the per-client fixed-window limiter.
type RateLimitConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxRequests     int      `yaml:"max_requests"`
	Window          Duration `yaml:"window"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// NoiseConfig tunes the markdown transform's noise removal.
type NoiseConfig struct {
	ExtraTokens    []string `yaml:"extra_tokens"`
	ExtraSelectors []string `yaml:"extra_selectors"`
}

// LogConfig configures zap outputs.
type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level,omitempty"`
	Format  string `yaml:"format,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Level    string         `yaml:"level,omitempty"`
	Format   string         `yaml:"format,omitempty"`
	Path     string         `yaml:"path,omitempty"`
	Rotation RotationConfig `yaml:"rotation,omitempty"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"` // megabytes
	MaxAge     int  `yaml:"max_age"`  // days
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// MetricsConfig configures the prometheus listener.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Duration is a time.Duration with YAML support for strings like "30s".
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("1m30s") or a bare
// number of milliseconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var ms int64
	if err := unmarshal(&ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds number")
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Millis returns the duration in whole milliseconds.
func (d Duration) Millis() int64 { return time.Duration(d).Milliseconds() }
