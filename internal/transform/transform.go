// Package transform converts fetched documents to markdown artifacts:
// noise removal over a parsed DOM, title and metadata extraction, then
// HTML-to-markdown conversion with relative links resolved against the
// page URL.
package transform

import (
	"bytes"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
	"github.com/edgecomet/fetchmd/internal/fetcherr"
)

// Options tune a single transform call.
type Options struct {
	// MediaType routes non-HTML textual content (markdown, JSON, plain
	// text) past the converter unchanged.
	MediaType string

	// SkipNoiseRemoval keeps chrome elements in the converted output.
	SkipNoiseRemoval bool
}

// Result is the transformed artifact.
type Result struct {
	Markdown string
	Title    string
	Metadata map[string]string
	// Truncated marks input clamped at the HTML size limit before
	// conversion.
	Truncated bool
}

// Transformer converts decoded text to markdown.
type Transformer struct {
	maxHTMLSize int64
	noise       *noiseRemover
	logger      *zap.Logger
}

// New builds a transformer from the noise configuration.
func New(maxHTMLSize int64, noise configtypes.NoiseConfig, logger *zap.Logger) *Transformer {
	return &Transformer{
		maxHTMLSize: maxHTMLSize,
		noise:       newNoiseRemover(noise.ExtraTokens, noise.ExtraSelectors),
		logger:      logger,
	}
}

// Apply converts text (already UTF-8) fetched from pageURL into a markdown
// artifact. Non-HTML media types pass through as-is.
func (t *Transformer) Apply(text string, pageURL string, opts Options) (*Result, error) {
	if !isHTMLMediaType(opts.MediaType) && !looksLikeHTML(text) {
		return &Result{Markdown: text, Metadata: map[string]string{}}, nil
	}

	truncated := false
	if t.maxHTMLSize > 0 && int64(len(text)) > t.maxHTMLSize {
		text = text[:t.maxHTMLSize]
		truncated = true
		t.logger.Debug("HTML input clamped before conversion",
			zap.String("url", pageURL),
			zap.Int64("limit", t.maxHTMLSize))
	}

	root, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fetcherr.Validation("Failed to parse HTML: %v", err).WithURL(pageURL)
	}

	title := extractTitle(root)
	metadata := extractMetadata(root)

	if !opts.SkipNoiseRemoval {
		removed := t.noise.strip(root)
		if removed > 0 {
			t.logger.Debug("Noise elements removed",
				zap.String("url", pageURL), zap.Int("count", removed))
		}
	}

	var cleaned bytes.Buffer
	if err := html.Render(&cleaned, root); err != nil {
		return nil, fetcherr.Internal(err).WithURL(pageURL)
	}

	markdown, err := htmltomarkdown.ConvertString(cleaned.String(), convertOptions(pageURL)...)
	if err != nil {
		return nil, fetcherr.Internal(err).WithURL(pageURL)
	}

	return &Result{
		Markdown:  strings.TrimSpace(markdown),
		Title:     title,
		Metadata:  metadata,
		Truncated: truncated,
	}, nil
}

// convertOptions resolves relative links against the page origin.
func convertOptions(pageURL string) []converter.ConvertOptionFunc {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	return []converter.ConvertOptionFunc{
		converter.WithDomain(parsed.Scheme + "://" + parsed.Host),
	}
}

func isHTMLMediaType(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return strings.Contains(mt, "text/html") || strings.Contains(mt, "application/xhtml")
}

// looksLikeHTML is the fallback for responses without a usable media type.
func looksLikeHTML(text string) bool {
	head := text
	if len(head) > 512 {
		head = head[:512]
	}
	head = strings.ToLower(head)
	return strings.Contains(head, "<!doctype html") ||
		strings.Contains(head, "<html")
}
