// Package config loads the fetchmd configuration: compiled-in defaults,
// then an optional YAML file, then environment variable overrides. Only
// startup validation failures are fatal.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

// Default values applied before file and environment layers.
func Defaults() configtypes.Config {
	return configtypes.Config{
		Server: configtypes.ServerConfig{
			Host:             "127.0.0.1",
			Port:             3000,
			HeadersTimeout:   configtypes.Duration(60 * time.Second),
			RequestTimeout:   configtypes.Duration(120 * time.Second),
			KeepAliveTimeout: configtypes.Duration(65 * time.Second),
		},
		Auth: configtypes.AuthConfig{
			Mode: configtypes.AuthModeStatic,
			OAuth: configtypes.OAuthConfig{
				IntrospectionTimeout: configtypes.Duration(5 * time.Second),
			},
		},
		Fetcher: configtypes.FetcherConfig{
			Timeout:         configtypes.Duration(30 * time.Second),
			MaxRedirects:    10,
			MaxContentBytes: 10 * 1024 * 1024,
			UserAgent:       "fetchmd/1.0 (+https://github.com/edgecomet/fetchmd)",
			MaxURLLength:    2048,
			MaxHTMLSize:     5 * 1024 * 1024,
			MaxInlineChars:  20000,
			DNSTimeout:      configtypes.Duration(5 * time.Second),
			Parallelism:     8,
			BlockedHostSuffixes: []string{".local", ".internal"},
		},
		Cache: configtypes.CacheConfig{
			Enabled:     true,
			MaxEntries:  1000,
			TTLSeconds:  0,
			Compression: configtypes.CompressionSnappy,
		},
		Session: configtypes.SessionConfig{
			TTL:         configtypes.Duration(30 * time.Minute),
			InitTimeout: configtypes.Duration(10 * time.Second),
			MaxSessions: 100,
		},
		RateLimit: configtypes.RateLimitConfig{
			Enabled:         true,
			MaxRequests:     60,
			Window:          configtypes.Duration(time.Minute),
			CleanupInterval: configtypes.Duration(5 * time.Minute),
		},
		Log: configtypes.LogConfig{
			Level: configtypes.LogLevelInfo,
			Console: configtypes.ConsoleLogConfig{
				Enabled: true,
				Format:  configtypes.LogFormatConsole,
			},
			File: configtypes.FileLogConfig{
				Format: configtypes.LogFormatText,
				Rotation: configtypes.RotationConfig{
					MaxSize:    100,
					MaxAge:     14,
					MaxBackups: 5,
				},
			},
		},
		Metrics: configtypes.MetricsConfig{
			Listen:    "127.0.0.1:9090",
			Path:      "/metrics",
			Namespace: "fetchmd",
		},
	}
}

// Load builds the effective configuration. configPath may be empty.
func Load(configPath string) (*configtypes.Config, error) {
	cfg := Defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto cfg. Unset or malformed
// values leave the existing value untouched.
func applyEnv(cfg *configtypes.Config) {
	envString("SERVER_HOST", &cfg.Server.Host)
	envInt("SERVER_PORT", &cfg.Server.Port)
	envBool("ALLOW_REMOTE", &cfg.Server.AllowRemote)
	envList("ALLOWED_HOSTS", &cfg.Server.AllowedHosts)
	envMillis("HTTP_HEADERS_TIMEOUT_MS", &cfg.Server.HeadersTimeout)
	envMillis("HTTP_REQUEST_TIMEOUT_MS", &cfg.Server.RequestTimeout)
	envMillis("HTTP_KEEPALIVE_TIMEOUT_MS", &cfg.Server.KeepAliveTimeout)

	envString("AUTH_MODE", &cfg.Auth.Mode)
	envList("STATIC_TOKENS", &cfg.Auth.StaticTokens)
	envString("OAUTH_ISSUER_URL", &cfg.Auth.OAuth.IssuerURL)
	envString("OAUTH_AUTHORIZATION_URL", &cfg.Auth.OAuth.AuthorizationURL)
	envString("OAUTH_TOKEN_URL", &cfg.Auth.OAuth.TokenURL)
	envString("OAUTH_INTROSPECTION_URL", &cfg.Auth.OAuth.IntrospectionURL)
	envString("OAUTH_CLIENT_ID", &cfg.Auth.OAuth.ClientID)
	envString("OAUTH_CLIENT_SECRET", &cfg.Auth.OAuth.ClientSecret)
	envList("OAUTH_REQUIRED_SCOPES", &cfg.Auth.OAuth.RequiredScopes)
	envString("OAUTH_RESOURCE_URL", &cfg.Auth.OAuth.ResourceURL)
	envMillis("OAUTH_INTROSPECTION_TIMEOUT_MS", &cfg.Auth.OAuth.IntrospectionTimeout)

	envMillis("FETCHER_TIMEOUT_MS", &cfg.Fetcher.Timeout)
	envInt("FETCHER_MAX_REDIRECTS", &cfg.Fetcher.MaxRedirects)
	envInt64("FETCHER_MAX_CONTENT_BYTES", &cfg.Fetcher.MaxContentBytes)
	envString("FETCHER_USER_AGENT", &cfg.Fetcher.UserAgent)
	envInt("MAX_URL_LENGTH", &cfg.Fetcher.MaxURLLength)
	envInt64("MAX_HTML_SIZE", &cfg.Fetcher.MaxHTMLSize)
	envInt("MAX_INLINE_CONTENT_CHARS", &cfg.Fetcher.MaxInlineChars)
	envMillis("FETCHER_DNS_TIMEOUT_MS", &cfg.Fetcher.DNSTimeout)
	envInt("FETCHER_PARALLELISM", &cfg.Fetcher.Parallelism)
	envList("FETCHER_BLOCKED_HOSTS", &cfg.Fetcher.BlockedHosts)
	envList("FETCHER_BLOCKED_HOST_SUFFIXES", &cfg.Fetcher.BlockedHostSuffixes)

	envBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	envInt("CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)
	envInt("CACHE_TTL_SECONDS", &cfg.Cache.TTLSeconds)
	envString("CACHE_COMPRESSION", &cfg.Cache.Compression)

	envMillis("SESSION_TTL_MS", &cfg.Session.TTL)
	envMillis("SESSION_INIT_TIMEOUT_MS", &cfg.Session.InitTimeout)
	envInt("MAX_SESSIONS", &cfg.Session.MaxSessions)

	envBool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	envInt("RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.MaxRequests)
	envMillis("RATE_LIMIT_WINDOW_MS", &cfg.RateLimit.Window)
	envMillis("RATE_LIMIT_CLEANUP_INTERVAL_MS", &cfg.RateLimit.CleanupInterval)

	envList("NOISE_EXTRA_TOKENS", &cfg.Noise.ExtraTokens)
	envList("NOISE_EXTRA_SELECTORS", &cfg.Noise.ExtraSelectors)

	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Console.Format)
	if path, ok := os.LookupEnv("LOG_FILE"); ok && path != "" {
		cfg.Log.File.Enabled = true
		cfg.Log.File.Path = path
	}
	envInt("LOG_FILE_MAX_SIZE_MB", &cfg.Log.File.Rotation.MaxSize)
	envInt("LOG_FILE_MAX_BACKUPS", &cfg.Log.File.Rotation.MaxBackups)
	envInt("LOG_FILE_MAX_AGE_DAYS", &cfg.Log.File.Rotation.MaxAge)

	envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString("METRICS_LISTEN", &cfg.Metrics.Listen)
	envString("METRICS_PATH", &cfg.Metrics.Path)
}

// Validate enforces the startup invariants. A failure here aborts the
// process with exit code 1.
func Validate(cfg *configtypes.Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if !cfg.Server.AllowRemote && !isLoopbackHost(cfg.Server.Host) {
		return fmt.Errorf("binding to non-loopback host %q requires ALLOW_REMOTE=true", cfg.Server.Host)
	}

	switch cfg.Auth.Mode {
	case configtypes.AuthModeStatic:
		if len(cfg.Auth.StaticTokens) == 0 {
			return fmt.Errorf("static auth mode requires at least one token in STATIC_TOKENS")
		}
	case configtypes.AuthModeOAuth:
		oauth := cfg.Auth.OAuth
		missing := []string{}
		if oauth.IssuerURL == "" {
			missing = append(missing, "OAUTH_ISSUER_URL")
		}
		if oauth.IntrospectionURL == "" {
			missing = append(missing, "OAUTH_INTROSPECTION_URL")
		}
		if oauth.ClientID == "" {
			missing = append(missing, "OAUTH_CLIENT_ID")
		}
		if len(missing) > 0 {
			return fmt.Errorf("oauth auth mode requires %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("invalid auth mode %q (must be %q or %q)",
			cfg.Auth.Mode, configtypes.AuthModeStatic, configtypes.AuthModeOAuth)
	}

	switch cfg.Cache.Compression {
	case configtypes.CompressionNone, configtypes.CompressionSnappy, configtypes.CompressionLZ4, "":
	default:
		return fmt.Errorf("invalid cache compression %q", cfg.Cache.Compression)
	}

	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("max redirects must be non-negative")
	}
	if cfg.Fetcher.MaxContentBytes <= 0 {
		return fmt.Errorf("max content bytes must be positive")
	}
	if cfg.Session.MaxSessions < 1 {
		return fmt.Errorf("max sessions must be at least 1")
	}
	return nil
}

func isLoopbackHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1", "":
		return host != ""
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			*dst = true
		case "false", "0", "no":
			*dst = false
		}
	}
}

func envMillis(key string, dst *configtypes.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && ms >= 0 {
			*dst = configtypes.Duration(time.Duration(ms) * time.Millisecond)
		}
	}
}

func envList(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*dst = out
	}
}
