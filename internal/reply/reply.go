// Package reply shapes pipeline results for clients: an inline-size
// truncation policy that respects code fences and markdown links, and the
// structured reply that references the cached artifact when one exists.
package reply

import (
	"fmt"
	"time"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/fetch/pipeline"
)

// DownloadPathPrefix is the route serving cached artifacts.
const DownloadPathPrefix = "/mcp/downloads"

// Reply is the structured JSON body of a successful fetch response.
type Reply struct {
	URL              string            `json:"url"`
	ResolvedURL      string            `json:"resolved_url"`
	FinalURL         string            `json:"final_url,omitempty"`
	CacheResourceURI string            `json:"cache_resource_uri,omitempty"`
	InputURL         string            `json:"input_url"`
	Title            string            `json:"title"`
	Metadata         map[string]string `json:"metadata"`
	Markdown         string            `json:"markdown"`
	FromCache        bool              `json:"from_cache"`
	FetchedAt        string            `json:"fetched_at"`
	ContentSize      int               `json:"content_size"`
	Truncated        bool              `json:"truncated,omitempty"`
}

// Shaper builds replies under the configured global inline limit.
type Shaper struct {
	globalLimit int
	cache       *cache.Cache
}

// NewShaper builds a shaper. globalLimit 0 means unlimited inline content.
func NewShaper(globalLimit int, artifactCache *cache.Cache) *Shaper {
	return &Shaper{globalLimit: globalLimit, cache: artifactCache}
}

// Shape converts a pipeline result into the structured reply, truncating
// the markdown to the effective inline limit. ContentSize reports the
// pre-truncation size.
func (s *Shaper) Shape(result *pipeline.Result, perCallLimit int) *Reply {
	limit := EffectiveLimit(perCallLimit, s.globalLimit)
	markdown, truncated := Truncate(result.Artifact.Markdown, limit)

	metadata := result.Artifact.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	r := &Reply{
		URL:         result.URL,
		ResolvedURL: result.ResolvedURL,
		FinalURL:    result.FinalURL,
		InputURL:    result.OriginalURL,
		Title:       result.Artifact.Title,
		Metadata:    metadata,
		Markdown:    markdown,
		FromCache:   result.FromCache,
		FetchedAt:   result.FetchedAt.UTC().Format(time.RFC3339),
		ContentSize: len(result.Artifact.Markdown),
		Truncated:   truncated,
	}

	// The resource URI is advertised only while the artifact actually
	// sits in the cache.
	if s.cache != nil && s.cache.Get(result.Fingerprint) != nil {
		r.CacheResourceURI = ResourceURI(result.Fingerprint)
	}
	return r
}

// ResourceURI renders the download path for a fingerprint.
func ResourceURI(fp cache.Fingerprint) string {
	return fmt.Sprintf("%s/%s/%s", DownloadPathPrefix, fp.Namespace, fp.Hash)
}
