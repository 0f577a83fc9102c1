// Package pipeline runs the full fetch flow: normalize and rewrite the
// URL, check the cache, fetch safely, transform to markdown, and store
// the artifact under both the original and the post-redirect fingerprint.
// Concurrent requests for the same fingerprint share one build.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/common/configtypes"
	"github.com/edgecomet/fetchmd/internal/fetch/decode"
	"github.com/edgecomet/fetchmd/internal/fetch/httpclient"
	"github.com/edgecomet/fetchmd/internal/fetcherr"
	"github.com/edgecomet/fetchmd/internal/safeurl"
	"github.com/edgecomet/fetchmd/internal/transform"
)

// Fetcher issues the HTTP leg of the pipeline. Satisfied by
// httpclient.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*httpclient.Result, error)
}

// CacheObserver receives cache lookup outcomes, keyed by namespace.
// Satisfied by the metrics collector.
type CacheObserver interface {
	RecordCacheHit(namespace string)
	RecordCacheMiss(namespace string)
}

// Request describes one fetch operation.
type Request struct {
	URL              string
	Namespace        string
	ForceRefresh     bool
	SkipNoiseRemoval bool
}

// Result is the pipeline outcome.
type Result struct {
	Artifact    *Artifact
	FromCache   bool
	OriginalURL string // caller input, as given
	URL         string // normalized URL before rewriting
	ResolvedURL string // after raw-URL rewriting; the fetched URL
	FinalURL    string // post-redirect URL when it differs from ResolvedURL
	FetchedAt   time.Time
	Fingerprint cache.Fingerprint
	ContentSize int
	Rewritten   bool
	Platform    string
}

// Pipeline wires the fetch flow together.
type Pipeline struct {
	normalizer  *safeurl.Normalizer
	fetcher     Fetcher
	cache       *cache.Cache
	transformer *transform.Transformer
	retry       *retryPolicy
	group       singleflight.Group
	observer    CacheObserver

	maxContentBytes int64
	logger          *zap.Logger
}

// New builds a pipeline. The cache may be disabled; lookups and stores
// become no-ops.
func New(
	normalizer *safeurl.Normalizer,
	fetcher Fetcher,
	artifactCache *cache.Cache,
	transformer *transform.Transformer,
	cfg configtypes.FetcherConfig,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		normalizer:      normalizer,
		fetcher:         fetcher,
		cache:           artifactCache,
		transformer:     transformer,
		retry:           newRetryPolicy(defaultRetryAttempts, logger),
		maxContentBytes: cfg.MaxContentBytes,
		logger:          logger,
	}
}

// SetCacheObserver registers o to be notified of every cache lookup
// outcome. Call before the pipeline starts serving.
func (p *Pipeline) SetCacheObserver(o CacheObserver) {
	p.observer = o
}

// variationKey is the stable serialization of request variants that feed
// the fingerprint.
func variationKey(req Request) string {
	if req.SkipNoiseRemoval {
		return "skip-noise-removal"
	}
	return ""
}

// Fetch runs the pipeline for req. Identical concurrent requests (same
// fingerprint) coalesce onto a single build; the build slot is released
// before the cache store so a failed build never poisons later attempts.
func (p *Pipeline) Fetch(ctx context.Context, req Request) (*Result, error) {
	normalized, err := p.normalizer.Normalize(req.URL)
	if err != nil {
		return nil, err
	}

	rewrite := safeurl.RewriteRawURL(normalized.URL)
	resolvedURL := rewrite.URL
	if rewrite.Transformed {
		p.logger.Debug("Raw URL rewrite applied",
			zap.String("from", normalized.URL),
			zap.String("to", resolvedURL),
			zap.String("platform", rewrite.Platform))
	}

	fp := cache.NewFingerprint(req.Namespace, resolvedURL, variationKey(req))

	base := Result{
		OriginalURL: req.URL,
		URL:         normalized.URL,
		ResolvedURL: resolvedURL,
		Fingerprint: fp,
		Rewritten:   rewrite.Transformed,
		Platform:    rewrite.Platform,
	}

	if p.cache.Enabled() && !req.ForceRefresh {
		if result := p.lookup(fp, base); result != nil {
			p.observeLookup(req.Namespace, true)
			return result, nil
		}
		p.observeLookup(req.Namespace, false)
	}

	built, err, _ := p.group.Do(fp.String(), func() (interface{}, error) {
		return p.build(ctx, resolvedURL, req)
	})
	if err != nil {
		return nil, fetcherr.From(err)
	}
	b := built.(*buildResult)

	result := base
	result.Artifact = b.artifact
	result.FetchedAt = b.fetchedAt
	result.ContentSize = len(b.artifact.Markdown)
	if b.finalURL != resolvedURL {
		result.FinalURL = b.finalURL
	}

	p.store(fp, req, &result, b)
	return &result, nil
}

func (p *Pipeline) observeLookup(namespace string, hit bool) {
	if p.observer == nil {
		return
	}
	if hit {
		p.observer.RecordCacheHit(namespace)
	} else {
		p.observer.RecordCacheMiss(namespace)
	}
}

// lookup attempts a cache hit. Undecodable entries log and fall through
// to a rebuild.
func (p *Pipeline) lookup(fp cache.Fingerprint, base Result) *Result {
	entry := p.cache.Get(fp)
	if entry == nil {
		return nil
	}

	artifact, err := DecodeArtifact(entry.Content)
	if err != nil {
		p.logger.Warn("Cached artifact is undecodable, refetching",
			zap.String("fingerprint", fp.String()), zap.Error(err))
		return nil
	}

	result := base
	result.Artifact = artifact
	result.FromCache = true
	result.FetchedAt = entry.FetchedAt
	result.ContentSize = len(artifact.Markdown)
	if entry.URL != "" && entry.URL != base.ResolvedURL {
		result.FinalURL = entry.URL
	}
	return &result
}

type buildResult struct {
	artifact  *Artifact
	finalURL  string
	fetchedAt time.Time
}

// build fetches and transforms one document, with retry around the
// network leg.
func (p *Pipeline) build(ctx context.Context, resolvedURL string, req Request) (*buildResult, error) {
	var text *decode.TextResult
	var finalURL, mediaType string

	err := p.retry.run(ctx, resolvedURL, func() error {
		fetched, err := p.fetcher.Fetch(ctx, resolvedURL, nil)
		if err != nil {
			return err
		}
		resp := fetched.Response

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			upstream := fetcherr.Upstream(resp.StatusCode, fetched.FinalURL)
			if resp.StatusCode == 429 {
				upstream = upstream.WithDetail("retryAfter", parseRetryAfter(resp.Header))
			}
			return upstream
		}

		mediaType = resp.Header.Get("Content-Type")
		text, err = decode.ReadText(resp, fetched.FinalURL, p.maxContentBytes, decode.ModeStrict, "")
		if err != nil {
			return err
		}
		finalURL = fetched.FinalURL
		return nil
	})
	if err != nil {
		return nil, err
	}

	transformed, err := p.transformer.Apply(text.Text, finalURL, transform.Options{
		MediaType:        mediaType,
		SkipNoiseRemoval: req.SkipNoiseRemoval,
	})
	if err != nil {
		return nil, err
	}

	return &buildResult{
		artifact: &Artifact{
			Markdown: transformed.Markdown,
			Title:    transformed.Title,
			Metadata: transformed.Metadata,
		},
		finalURL:  finalURL,
		fetchedAt: time.Now(),
	}, nil
}

// store writes the artifact under the pre-redirect fingerprint, and also
// under the post-redirect fingerprint when the redirect landed on a
// different URL, so direct fetches of the final URL hit too.
func (p *Pipeline) store(fp cache.Fingerprint, req Request, result *Result, b *buildResult) {
	if !p.cache.Enabled() {
		return
	}

	encoded, err := encodeArtifact(b.artifact)
	if err != nil {
		p.logger.Warn("Artifact encode failed, skipping cache store",
			zap.String("fingerprint", fp.String()), zap.Error(err))
		return
	}

	meta := cache.Meta{
		URL:       b.finalURL,
		Title:     b.artifact.Title,
		FetchedAt: b.fetchedAt,
	}
	if err := p.cache.Set(fp, encoded, meta, false); err != nil {
		p.logger.Warn("Cache store failed", zap.String("fingerprint", fp.String()), zap.Error(err))
	}

	if b.finalURL != result.ResolvedURL {
		finalFp := cache.NewFingerprint(req.Namespace, b.finalURL, variationKey(req))
		if finalFp != fp {
			if err := p.cache.Set(finalFp, encoded, meta, false); err != nil {
				p.logger.Warn("Cache store failed for final URL",
					zap.String("fingerprint", finalFp.String()), zap.Error(err))
			}
		}
	}
}
