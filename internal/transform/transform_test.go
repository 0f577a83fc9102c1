package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

func newTestTransformer(maxHTMLSize int64, noise configtypes.NoiseConfig) *Transformer {
	return New(maxHTMLSize, noise, zap.NewNop())
}

// TestApplyHappyPath tests a basic HTML-to-markdown conversion
func TestApplyHappyPath(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	page := "<html><head><title>Test Page</title></head><body><p>Hello</p></body></html>"

	result, err := tr.Apply(page, "https://example.com/test", Options{MediaType: "text/html"})
	require.NoError(t, err)
	assert.Equal(t, "Test Page", result.Title)
	assert.Contains(t, result.Markdown, "Hello")
	assert.False(t, result.Truncated)
}

// TestApplyHeadings tests structural conversion
func TestApplyHeadings(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	page := `<html><body><h1>Main</h1><p>Intro with a <a href="/docs">link</a>.</p><h2>Sub</h2></body></html>`

	result, err := tr.Apply(page, "https://example.com/", Options{MediaType: "text/html"})
	require.NoError(t, err)
	assert.Contains(t, result.Markdown, "# Main")
	assert.Contains(t, result.Markdown, "## Sub")
	assert.Contains(t, result.Markdown, "https://example.com/docs", "relative links resolve against the page origin")
}

// TestApplyNonHTMLPassthrough tests that markdown and plain text bypass conversion
func TestApplyNonHTMLPassthrough(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	content := "# Already markdown\n\nsome *emphasis*\n"

	result, err := tr.Apply(content, "https://example.com/readme.md", Options{MediaType: "text/markdown"})
	require.NoError(t, err)
	assert.Equal(t, content, result.Markdown)
	assert.Empty(t, result.Title)
}

// TestApplyHTMLSniffWithoutMediaType tests the content-based HTML fallback
func TestApplyHTMLSniffWithoutMediaType(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	page := "<!DOCTYPE html><html><head><title>Sniffed</title></head><body><p>body</p></body></html>"

	result, err := tr.Apply(page, "https://example.com/", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Sniffed", result.Title)
}

// TestApplyNoiseRemoval tests default noise stripping
func TestApplyNoiseRemoval(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	page := `<html><body>
		<nav>Site navigation</nav>
		<div class="cookie-banner">Accept cookies</div>
		<article><p>Real content</p></article>
		<script>alert(1)</script>
	</body></html>`

	result, err := tr.Apply(page, "https://example.com/", Options{MediaType: "text/html"})
	require.NoError(t, err)
	assert.Contains(t, result.Markdown, "Real content")
	assert.NotContains(t, result.Markdown, "Site navigation")
	assert.NotContains(t, result.Markdown, "Accept cookies")
	assert.NotContains(t, result.Markdown, "alert")
}

// TestApplySkipNoiseRemoval tests the skip variant keeps chrome
func TestApplySkipNoiseRemoval(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	page := `<html><body><nav>Menu entries</nav><p>Content</p></body></html>`

	result, err := tr.Apply(page, "https://example.com/", Options{
		MediaType:        "text/html",
		SkipNoiseRemoval: true,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Markdown, "Menu entries")
	assert.Contains(t, result.Markdown, "Content")
}

// TestApplyExtraNoiseConfig tests configured tokens and selectors
func TestApplyExtraNoiseConfig(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{
		ExtraTokens:    []string{"customjunk"},
		ExtraSelectors: []string{"#ad-slot", ".tracking-pixel"},
	})
	page := `<html><body>
		<div class="customjunk-wrap">junk token</div>
		<div id="ad-slot">ad content</div>
		<div class="tracking-pixel">pixel</div>
		<p>Kept</p>
	</body></html>`

	result, err := tr.Apply(page, "https://example.com/", Options{MediaType: "text/html"})
	require.NoError(t, err)
	assert.Contains(t, result.Markdown, "Kept")
	assert.NotContains(t, result.Markdown, "junk token")
	assert.NotContains(t, result.Markdown, "ad content")
	assert.NotContains(t, result.Markdown, "pixel")
}

// TestApplyHeaderInsideArticleKept tests content-scoped header handling
func TestApplyHeaderInsideArticleKept(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	page := `<html><body>
		<header>Page chrome</header>
		<article><header><h1>Article heading</h1></header><p>Body</p></article>
	</body></html>`

	result, err := tr.Apply(page, "https://example.com/", Options{MediaType: "text/html"})
	require.NoError(t, err)
	assert.Contains(t, result.Markdown, "Article heading")
	assert.NotContains(t, result.Markdown, "Page chrome")
}

// TestApplyHTMLSizeClamp tests the pre-conversion size limit
func TestApplyHTMLSizeClamp(t *testing.T) {
	tr := newTestTransformer(256, configtypes.NoiseConfig{})
	page := "<html><body><p>" + strings.Repeat("x", 1000) + "</p></body></html>"

	result, err := tr.Apply(page, "https://example.com/", Options{MediaType: "text/html"})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Less(t, len(result.Markdown), 300)
}

// TestApplyMetadata tests meta tag and canonical extraction
func TestApplyMetadata(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	page := `<html lang="en"><head>
		<title>Meta Page</title>
		<meta name="description" content="A description.">
		<meta property="og:title" content="OG Title">
		<link rel="canonical" href="https://example.com/canonical">
	</head><body><p>x</p></body></html>`

	result, err := tr.Apply(page, "https://example.com/", Options{MediaType: "text/html"})
	require.NoError(t, err)
	assert.Equal(t, "en", result.Metadata["lang"])
	assert.Equal(t, "A description.", result.Metadata["description"])
	assert.Equal(t, "OG Title", result.Metadata["og_title"])
	assert.Equal(t, "https://example.com/canonical", result.Metadata["canonical"])
}

// TestExtractTitleCap tests the 200-rune title cap
func TestExtractTitleCap(t *testing.T) {
	tr := newTestTransformer(0, configtypes.NoiseConfig{})
	long := strings.Repeat("т", 250) // multibyte runes
	page := "<html><head><title>" + long + "</title></head><body><p>x</p></body></html>"

	result, err := tr.Apply(page, "https://example.com/", Options{MediaType: "text/html"})
	require.NoError(t, err)
	assert.Equal(t, 200, len([]rune(result.Title)))
}
