package safeurl

import (
	"net/url"
	"strings"
)

// defaultSecretParams are query parameter names whose values are stripped
// before a URL reaches the logs or the telemetry channel.
var defaultSecretParams = []string{
	"token", "key", "secret", "password", "auth", "apikey", "api_key",
	"access_token", "refresh_token", "signature", "sig", "credential",
}

// Redactor removes credentials from URLs before logging.
type Redactor struct {
	secretParams []string
}

// NewRedactor builds a redactor; extra parameter names extend the default
// secrets list (matched case-insensitively, substring).
func NewRedactor(extraParams []string) *Redactor {
	params := make([]string, 0, len(defaultSecretParams)+len(extraParams))
	params = append(params, defaultSecretParams...)
	for _, p := range extraParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			params = append(params, p)
		}
	}
	return &Redactor{secretParams: params}
}

// Redact strips userinfo and replaces secret-looking query parameter
// values with "REDACTED". Unparseable input is returned as-is.
func (r *Redactor) Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = nil

	if u.RawQuery != "" {
		values := u.Query()
		changed := false
		for name := range values {
			if r.isSecret(name) {
				values.Set(name, "REDACTED")
				changed = true
			}
		}
		if changed {
			u.RawQuery = values.Encode()
		}
	}
	return u.String()
}

func (r *Redactor) isSecret(param string) bool {
	lower := strings.ToLower(param)
	for _, secret := range r.secretParams {
		if strings.Contains(lower, secret) {
			return true
		}
	}
	return false
}
