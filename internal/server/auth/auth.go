// Package auth verifies bearer tokens for the MCP endpoint. Static mode
// checks against a configured token list; oauth mode introspects the
// token at the authorization server.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

// AuthInfo describes a verified token.
type AuthInfo struct {
	ClientID string
	Subject  string
	Scopes   []string
	// ExpiresAt is zero when the verifier has no expiry information.
	ExpiresAt time.Time
}

// Verifier validates a bearer token and returns its AuthInfo.
type Verifier interface {
	Verify(ctx context.Context, token string) (*AuthInfo, error)
}

// ErrUnauthorized is returned for any token the verifier rejects.
var ErrUnauthorized = fmt.Errorf("unauthorized")

// BearerToken extracts the credential from an Authorization header, or
// in static mode from X-API-Key as an equivalent bearer token.
func BearerToken(authorization, apiKey, mode string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(authorization, prefix) {
		return strings.TrimSpace(authorization[len(prefix):])
	}
	if mode == configtypes.AuthModeStatic && apiKey != "" {
		return strings.TrimSpace(apiKey)
	}
	return ""
}

// StaticVerifier accepts tokens from a fixed list.
type StaticVerifier struct {
	tokens [][]byte
	logger *zap.Logger
}

func NewStaticVerifier(tokens []string, logger *zap.Logger) (*StaticVerifier, error) {
	v := &StaticVerifier{logger: logger}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			v.tokens = append(v.tokens, []byte(t))
		}
	}
	if len(v.tokens) == 0 {
		return nil, fmt.Errorf("static auth mode requires at least one token")
	}
	return v, nil
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (*AuthInfo, error) {
	candidate := []byte(token)
	for _, known := range v.tokens {
		if len(known) == len(candidate) &&
			subtle.ConstantTimeCompare(known, candidate) == 1 {
			return &AuthInfo{ClientID: "static"}, nil
		}
	}
	v.logger.Warn("Static token rejected")
	return nil, ErrUnauthorized
}

// IntrospectionVerifier validates tokens against an OAuth introspection
// endpoint (RFC 7662).
type IntrospectionVerifier struct {
	endpoint       string
	clientID       string
	clientSecret   string
	requiredScopes []string
	client         *http.Client
	logger         *zap.Logger
}

func NewIntrospectionVerifier(cfg configtypes.OAuthConfig, logger *zap.Logger) (*IntrospectionVerifier, error) {
	if cfg.IntrospectionURL == "" {
		return nil, fmt.Errorf("oauth auth mode requires an introspection URL")
	}
	timeout := cfg.IntrospectionTimeout.Std()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IntrospectionVerifier{
		endpoint:       cfg.IntrospectionURL,
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		requiredScopes: cfg.RequiredScopes,
		client:         &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

// introspection is the subset of the RFC 7662 response we consume.
type introspection struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope"`
	ClientID string `json:"client_id"`
	Subject  string `json:"sub"`
	Exp      int64  `json:"exp"`
}

func (v *IntrospectionVerifier) Verify(ctx context.Context, token string) (*AuthInfo, error) {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if v.clientID != "" {
		req.SetBasicAuth(v.clientID, v.clientSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("Token introspection failed", zap.Error(err))
		return nil, ErrUnauthorized
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Warn("Token introspection rejected",
			zap.Int("status", resp.StatusCode))
		return nil, ErrUnauthorized
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, ErrUnauthorized
	}
	var intro introspection
	if err := json.Unmarshal(body, &intro); err != nil {
		v.logger.Warn("Token introspection response unparseable", zap.Error(err))
		return nil, ErrUnauthorized
	}
	if !intro.Active {
		return nil, ErrUnauthorized
	}

	granted := strings.Fields(intro.Scope)
	for _, required := range v.requiredScopes {
		if !contains(granted, required) {
			v.logger.Warn("Token missing required scope",
				zap.String("scope", required))
			return nil, ErrUnauthorized
		}
	}

	info := &AuthInfo{
		ClientID: intro.ClientID,
		Subject:  intro.Subject,
		Scopes:   granted,
	}
	if intro.Exp > 0 {
		info.ExpiresAt = time.Unix(intro.Exp, 0)
	}
	return info, nil
}

// NewVerifier selects the verifier for the configured auth mode.
func NewVerifier(cfg configtypes.AuthConfig, logger *zap.Logger) (Verifier, error) {
	switch cfg.Mode {
	case configtypes.AuthModeStatic:
		return NewStaticVerifier(cfg.StaticTokens, logger)
	case configtypes.AuthModeOAuth:
		return NewIntrospectionVerifier(cfg.OAuth, logger)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
