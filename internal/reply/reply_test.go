package reply

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/common/configtypes"
	"github.com/edgecomet/fetchmd/internal/fetch/pipeline"
)

func sampleResult(markdown string) *pipeline.Result {
	return &pipeline.Result{
		Artifact: &pipeline.Artifact{
			Markdown: markdown,
			Title:    "Sample",
			Metadata: map[string]string{"lang": "en"},
		},
		OriginalURL: "https://example.com/a?x=1",
		URL:         "https://example.com/a?x=1",
		ResolvedURL: "https://example.com/a?x=1",
		FetchedAt:   time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Fingerprint: cache.NewFingerprint(cache.NamespaceMarkdown, "https://example.com/a?x=1", ""),
	}
}

// TestShapeBasic tests the structured reply fields
func TestShapeBasic(t *testing.T) {
	shaper := NewShaper(0, nil)
	result := sampleResult("# Sample\n\nbody")

	r := shaper.Shape(result, 0)
	assert.Equal(t, "https://example.com/a?x=1", r.URL)
	assert.Equal(t, "https://example.com/a?x=1", r.InputURL)
	assert.Equal(t, "Sample", r.Title)
	assert.Equal(t, "# Sample\n\nbody", r.Markdown)
	assert.Equal(t, len(result.Artifact.Markdown), r.ContentSize)
	assert.False(t, r.Truncated)
	assert.Equal(t, "2026-08-25T12:00:00Z", r.FetchedAt)
	assert.Empty(t, r.CacheResourceURI)
}

// TestShapeTruncation tests pre-truncation content size reporting
func TestShapeTruncation(t *testing.T) {
	shaper := NewShaper(100, nil)
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	result := sampleResult(string(long))

	r := shaper.Shape(result, 0)
	assert.True(t, r.Truncated)
	assert.LessOrEqual(t, len(r.Markdown), 100)
	assert.Equal(t, 500, r.ContentSize, "content_size reports the pre-truncation size")
}

// TestShapePerCallLimit tests that the smaller limit wins
func TestShapePerCallLimit(t *testing.T) {
	shaper := NewShaper(1000, nil)
	result := sampleResult(string(make([]byte, 500)))

	r := shaper.Shape(result, 100)
	assert.True(t, r.Truncated)
	assert.LessOrEqual(t, len(r.Markdown), 100)
}

// TestShapeCacheResourceURI tests that the URI appears only for cached artifacts
func TestShapeCacheResourceURI(t *testing.T) {
	artifactCache := cache.New(configtypes.CacheConfig{
		Enabled:     true,
		MaxEntries:  10,
		Compression: configtypes.CompressionNone,
	}, zap.NewNop())
	shaper := NewShaper(0, artifactCache)
	result := sampleResult("# Sample")

	r := shaper.Shape(result, 0)
	assert.Empty(t, r.CacheResourceURI, "artifact not in cache yet")

	require.NoError(t, artifactCache.Set(result.Fingerprint, []byte(`{"markdown":"# Sample"}`), cache.Meta{}, false))
	r = shaper.Shape(result, 0)
	assert.Equal(t, "/mcp/downloads/markdown/"+result.Fingerprint.Hash, r.CacheResourceURI)
}
