// Package fetcherr defines the typed error model shared by the fetch
// pipeline and the HTTP/JSON-RPC edges. Components return *Error (or wrap
// one); the edge maps it once to a wire shape.
package fetcherr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for edge mapping.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindBlocked          Kind = "blocked"
	KindDNS              Kind = "dns"
	KindRedirect         Kind = "redirect"
	KindTimeout          Kind = "timeout"
	KindAborted          Kind = "aborted"
	KindRateLimited      Kind = "rate_limited"
	KindHTTP             Kind = "http"
	KindUnsupportedMedia Kind = "unsupported_media"
	KindSizeLimit        Kind = "size_limit"
	KindNetwork          Kind = "network"
	KindUnknown          Kind = "unknown"
)

// Stable error codes surfaced to clients.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeBlocked      = "EBLOCKED"
	CodeNoData       = "ENODATA"
	CodeInvalidHost  = "EINVAL"
	CodeDNSTimeout   = "ETIMEOUT"
	CodeBadRedirect  = "EBADREDIRECT"
	CodeBadRequest   = "BAD_REQUEST"
	CodeNotFound     = "NOT_FOUND"
	CodeRateLimited  = "RATE_LIMITED"
	CodeServerBusy   = "SERVER_BUSY"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
)

// Error carries everything the edge needs to shape a response.
type Error struct {
	Kind       Kind
	Message    string
	Code       string
	StatusCode int            // 0 = unset (network errors carry no status)
	URL        string         // request URL of the hop that failed, if known
	Details    map[string]any // e.g. {"retryAfter": 30}, {"timeoutMs": 30000}
	cause      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithURL annotates the error with the URL of the failing hop.
// The first annotation wins so the innermost hop is reported.
func (e *Error) WithURL(url string) *Error {
	if e.URL == "" {
		e.URL = url
	}
	return e
}

// WithDetail attaches a single detail key.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, StatusCode: 400, Message: fmt.Sprintf(format, args...)}
}

func Blocked(format string, args ...any) *Error {
	return &Error{Kind: KindBlocked, Code: CodeBlocked, StatusCode: 400, Message: fmt.Sprintf(format, args...)}
}

// DNS builds a resolver error. The status depends on the code: lookup
// timeouts surface as 504, everything else as 400.
func DNS(code string, format string, args ...any) *Error {
	status := 400
	kind := KindDNS
	if code == CodeDNSTimeout {
		status = 504
	}
	if code == CodeBlocked {
		kind = KindBlocked
	}
	return &Error{Kind: kind, Code: code, StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

func Redirect(format string, args ...any) *Error {
	return &Error{Kind: KindRedirect, Code: CodeBadRedirect, StatusCode: 400, Message: fmt.Sprintf(format, args...)}
}

func Timeout(timeoutMs int64) *Error {
	e := &Error{Kind: KindTimeout, StatusCode: 504, Message: fmt.Sprintf("Request timed out after %dms", timeoutMs)}
	return e.WithDetail("timeoutMs", timeoutMs)
}

func Aborted() *Error {
	return &Error{Kind: KindAborted, StatusCode: 499, Message: "Request aborted"}
}

func RateLimited(retryAfterSeconds int) *Error {
	e := &Error{Kind: KindRateLimited, Code: CodeRateLimited, StatusCode: 429, Message: "Rate limit exceeded"}
	return e.WithDetail("retryAfter", retryAfterSeconds)
}

// Upstream wraps a non-2xx origin response; the upstream status propagates.
func Upstream(statusCode int, url string) *Error {
	e := &Error{Kind: KindHTTP, StatusCode: statusCode, URL: url,
		Message: fmt.Sprintf("HTTP error %d fetching %s", statusCode, url)}
	if statusCode == 429 {
		e.Kind = KindRateLimited
	}
	return e
}

func UnsupportedMedia(format string, args ...any) *Error {
	return &Error{Kind: KindUnsupportedMedia, StatusCode: 415, Message: fmt.Sprintf(format, args...)}
}

func SizeLimit(limit int64, url string) *Error {
	return &Error{Kind: KindSizeLimit, StatusCode: 400, URL: url,
		Message: fmt.Sprintf("Content exceeds maximum size of %d bytes", limit)}
}

func Network(url string, cause error) *Error {
	return &Error{Kind: KindNetwork, URL: url, cause: cause,
		Message: fmt.Sprintf("Network error: could not reach %s", url)}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindUnknown, Code: CodeInternal, StatusCode: 500,
		Message: "Internal server error", cause: cause}
}

// From normalizes an arbitrary error into *Error. Context cancellation maps
// to aborted, deadline exceeded to timeout, anything else to unknown.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Aborted()
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, StatusCode: 504, Message: "Request timed out", cause: err}
	default:
		return &Error{Kind: KindUnknown, StatusCode: 500, Message: err.Error(), cause: err}
	}
}

// IsRetryable reports whether the pipeline may retry after this error.
// Client errors (4xx except 429), validation/blocked failures and
// cancellation are never retried.
func IsRetryable(err error) bool {
	fe := From(err)
	switch fe.Kind {
	case KindValidation, KindBlocked, KindRedirect, KindAborted, KindUnsupportedMedia, KindSizeLimit, KindDNS:
		return false
	case KindRateLimited:
		return true
	case KindHTTP:
		return fe.StatusCode < 400 || fe.StatusCode >= 500
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}
