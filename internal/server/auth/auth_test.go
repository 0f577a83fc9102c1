package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

// TestBearerToken tests credential extraction from request headers
func TestBearerToken(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
		apiKey        string
		mode          string
		want          string
	}{
		{"bearer header", "Bearer secret-1", "", configtypes.AuthModeStatic, "secret-1"},
		{"bearer trims whitespace", "Bearer  secret-1 ", "", configtypes.AuthModeOAuth, "secret-1"},
		{"api key in static mode", "", "secret-2", configtypes.AuthModeStatic, "secret-2"},
		{"api key ignored in oauth mode", "", "secret-2", configtypes.AuthModeOAuth, ""},
		{"bearer wins over api key", "Bearer a", "b", configtypes.AuthModeStatic, "a"},
		{"basic scheme rejected", "Basic dXNlcg==", "", configtypes.AuthModeStatic, ""},
		{"empty", "", "", configtypes.AuthModeStatic, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BearerToken(tt.authorization, tt.apiKey, tt.mode))
		})
	}
}

// TestStaticVerifier tests the fixed token list
func TestStaticVerifier(t *testing.T) {
	v, err := NewStaticVerifier([]string{"alpha", " beta ", ""}, zap.NewNop())
	require.NoError(t, err)

	info, err := v.Verify(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "static", info.ClientID)

	_, err = v.Verify(context.Background(), "beta")
	assert.NoError(t, err, "tokens are trimmed at construction")

	_, err = v.Verify(context.Background(), "gamma")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized, "blank entries are not admitted")
}

// TestStaticVerifierEmptyList tests the startup validation error
func TestStaticVerifierEmptyList(t *testing.T) {
	_, err := NewStaticVerifier([]string{"", "  "}, zap.NewNop())
	assert.Error(t, err)
}

func introspectionServer(t *testing.T, respond func(token string) introspection) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_ = json.NewEncoder(w).Encode(respond(r.PostFormValue("token")))
	}))
}

// TestIntrospectionVerifier tests the oauth token check
func TestIntrospectionVerifier(t *testing.T) {
	srv := introspectionServer(t, func(token string) introspection {
		if token == "good" {
			return introspection{
				Active:   true,
				Scope:    "fetch read",
				ClientID: "client-1",
				Subject:  "user-1",
				Exp:      time.Now().Add(time.Hour).Unix(),
			}
		}
		return introspection{Active: false}
	})
	defer srv.Close()

	v, err := NewIntrospectionVerifier(configtypes.OAuthConfig{
		IntrospectionURL: srv.URL,
		ClientID:         "client-1",
		ClientSecret:     "hunter2",
		RequiredScopes:   []string{"fetch"},
	}, zap.NewNop())
	require.NoError(t, err)

	info, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "client-1", info.ClientID)
	assert.Equal(t, "user-1", info.Subject)
	assert.Contains(t, info.Scopes, "read")
	assert.False(t, info.ExpiresAt.IsZero())

	_, err = v.Verify(context.Background(), "revoked")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// TestIntrospectionMissingScope tests required scope enforcement
func TestIntrospectionMissingScope(t *testing.T) {
	srv := introspectionServer(t, func(string) introspection {
		return introspection{Active: true, Scope: "read"}
	})
	defer srv.Close()

	v, err := NewIntrospectionVerifier(configtypes.OAuthConfig{
		IntrospectionURL: srv.URL,
		RequiredScopes:   []string{"fetch"},
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "good")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// TestIntrospectionServerError tests a failing authorization server
func TestIntrospectionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v, err := NewIntrospectionVerifier(configtypes.OAuthConfig{IntrospectionURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "any")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// TestNewVerifier tests mode selection
func TestNewVerifier(t *testing.T) {
	_, err := NewVerifier(configtypes.AuthConfig{
		Mode:         configtypes.AuthModeStatic,
		StaticTokens: []string{"t"},
	}, zap.NewNop())
	assert.NoError(t, err)

	_, err = NewVerifier(configtypes.AuthConfig{Mode: configtypes.AuthModeOAuth}, zap.NewNop())
	assert.Error(t, err, "oauth without introspection URL fails at startup")

	_, err = NewVerifier(configtypes.AuthConfig{Mode: "saml"}, zap.NewNop())
	assert.Error(t, err)
}
