// Package httpclient issues safe outbound GETs: a single keep-alive
// connection pool dialing through the safedns admission hook, and a manual
// redirect state machine with per-hop re-validation.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/fetch/safedns"
	"github.com/edgecomet/fetchmd/internal/fetcherr"
	"github.com/edgecomet/fetchmd/internal/safeurl"
)

// Options configure the fetch client.
type Options struct {
	UserAgent    string
	Timeout      time.Duration // per-call timeout
	MaxRedirects int
	Parallelism  int // sizes the connection pool: max(2*parallelism, 25)

	// Preflight, when true, runs a DNS admission check on every redirect
	// target before the next hop is issued.
	Preflight bool
}

// Client is a connection-pooled GET client with SSRF-safe dialing.
type Client struct {
	httpClient *http.Client
	resolver   *safedns.Resolver
	normalizer *safeurl.Normalizer
	opts       Options
	logger     *zap.Logger
}

// NewClient builds the client. The pool dials exclusively through the
// resolver so only validated addresses are ever connected.
func NewClient(resolver *safedns.Resolver, normalizer *safeurl.Normalizer, opts Options, logger *zap.Logger) *Client {
	poolSize := 2 * opts.Parallelism
	if poolSize < 25 {
		poolSize = 25
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext:         resolver.DialContext,
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize,
		IdleConnTimeout:     90 * time.Second,
		// The decoder owns content-encoding; the transport must not
		// negotiate or unwrap gzip behind our back.
		DisableCompression: true,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			// Manual redirect handling; every hop is re-validated.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		resolver:   resolver,
		normalizer: normalizer,
		opts:       opts,
		logger:     logger,
	}
}

// Get issues a single GET for targetURL without following redirects.
// The per-call timeout and the caller's cancellation compose: whichever
// fires first aborts the request.
func (c *Client) Get(ctx context.Context, targetURL string, headers map[string]string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	resp, err := c.do(ctx, targetURL, headers)
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie the timer to the body so reads stay bounded too.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) do(ctx context.Context, targetURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fetcherr.Validation("Invalid URL: %v", err).WithURL(targetURL)
	}

	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.mapTransportError(targetURL, err)
	}
	return resp, nil
}

func (c *Client) mapTransportError(targetURL string, err error) error {
	var fe *fetcherr.Error
	if errors.As(err, &fe) {
		return fe.WithURL(targetURL)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return fetcherr.Aborted().WithURL(targetURL)
	case errors.Is(err, context.DeadlineExceeded):
		return fetcherr.Timeout(c.opts.Timeout.Milliseconds()).WithURL(targetURL)
	default:
		c.logger.Debug("Transport error", zap.String("url", targetURL), zap.Error(err))
		return fetcherr.Network(targetURL, err)
	}
}

// Result is the terminal state of a redirect chain.
type Result struct {
	Response *http.Response
	FinalURL string // URL of the hop that produced Response
}

var redirectStatuses = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// Fetch runs the redirect state machine: issue a hop, and while the
// response is a redirect status, resolve the Location against the current
// URL, re-normalize it, optionally preflight its host, and continue with
// hop+1. Errors are annotated with the URL of the hop that failed.
func (c *Client) Fetch(ctx context.Context, startURL string, headers map[string]string) (*Result, error) {
	currentURL := startURL

	for hop := 0; ; hop++ {
		resp, err := c.Get(ctx, currentURL, headers)
		if err != nil {
			return nil, fetcherr.From(err).WithURL(currentURL)
		}

		if !redirectStatuses[resp.StatusCode] {
			return &Result{Response: resp, FinalURL: currentURL}, nil
		}

		location := resp.Header.Get("Location")
		// The previous body is never read on a redirect hop.
		resp.Body.Close()

		if location == "" {
			return nil, fetcherr.Redirect("Redirect response missing Location header").WithURL(currentURL)
		}
		if hop >= c.opts.MaxRedirects {
			return nil, fetcherr.Redirect("Too many redirects (max %d)", c.opts.MaxRedirects).WithURL(currentURL)
		}

		target, err := c.resolveRedirect(currentURL, location)
		if err != nil {
			return nil, fetcherr.From(err).WithURL(currentURL)
		}

		if c.opts.Preflight {
			if err := c.resolver.AssertSafe(ctx, target.Hostname); err != nil {
				return nil, fetcherr.From(err).WithURL(target.URL)
			}
		}

		c.logger.Debug("Following redirect",
			zap.String("from", currentURL),
			zap.String("to", target.URL),
			zap.Int("hop", hop+1),
			zap.Int("status", resp.StatusCode))

		currentURL = target.URL
	}
}

// resolveRedirect resolves location against base and runs full
// normalization on the target, so every hop satisfies the same admission
// predicate as the entry URL.
func (c *Client) resolveRedirect(base, location string) (*safeurl.NormalizeResult, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fetcherr.Redirect("Invalid redirect base: %v", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fetcherr.Redirect("Invalid redirect target: %v", err)
	}
	if ref.User != nil {
		return nil, fetcherr.Redirect("Redirect target contains credentials")
	}
	resolved := baseURL.ResolveReference(ref)

	normalized, err := c.normalizer.Normalize(resolved.String())
	if err != nil {
		return nil, fetcherr.Redirect("Redirect target rejected: %v", err)
	}
	return normalized, nil
}

// cancelReadCloser releases a context timer when the body is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// String formats the client options for startup logs.
func (o Options) String() string {
	return fmt.Sprintf("timeout=%s max_redirects=%d preflight=%t", o.Timeout, o.MaxRedirects, o.Preflight)
}
