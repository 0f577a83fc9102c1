package reply

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTruncateUnderLimit tests that short content passes through
func TestTruncateUnderLimit(t *testing.T) {
	content := "short content"

	out, truncated := Truncate(content, 100)
	assert.Equal(t, content, out)
	assert.False(t, truncated)
}

// TestTruncateUnlimited tests limit zero
func TestTruncateUnlimited(t *testing.T) {
	content := strings.Repeat("x", 100000)

	out, truncated := Truncate(content, 0)
	assert.Equal(t, content, out)
	assert.False(t, truncated)
}

// TestTruncateLengthLaw tests |truncate(content, k)| <= k
func TestTruncateLengthLaw(t *testing.T) {
	inputs := []string{
		strings.Repeat("word ", 10000),
		"# Title\n\n```\n" + strings.Repeat("code\n", 5000) + "```\n",
		strings.Repeat("see [link](https://example.com/a) and text ", 2000),
	}
	limits := []int{50, 100, 1000, 20000}

	for _, content := range inputs {
		for _, limit := range limits {
			out, truncated := Truncate(content, limit)
			assert.LessOrEqual(t, len(out), limit, "limit %d", limit)
			if len(content) > limit {
				assert.True(t, truncated)
				assert.True(t, strings.HasSuffix(out, Marker))
			}
		}
	}
}

// TestTruncateTinyLimits tests limits smaller than the marker
func TestTruncateTinyLimits(t *testing.T) {
	content := strings.Repeat("word ", 100)

	for _, limit := range []int{1, 5, 13, len(Marker), len(Marker) + 1} {
		out, truncated := Truncate(content, limit)
		assert.True(t, truncated, "limit %d", limit)
		assert.LessOrEqual(t, len(out), limit, "limit %d", limit)
	}

	out, _ := Truncate(content, 5)
	assert.Equal(t, "word ", out, "too small for the marker, bare cut")
}

// TestTruncateTinyLimitWithOpenFence tests that an oversized fence closer never overflows the limit
func TestTruncateTinyLimitWithOpenFence(t *testing.T) {
	content := "``````\n" + strings.Repeat("f", 100)

	out, truncated := Truncate(content, 20)
	assert.True(t, truncated)
	assert.LessOrEqual(t, len(out), 20)
}

// TestTruncateTildeFence tests the tilde-fence closing scenario
func TestTruncateTildeFence(t *testing.T) {
	content := "# Title\n\n~~~\n" + strings.Repeat("a", 21000) + "\n~~~\n"

	out, truncated := Truncate(content, 20000)
	require.True(t, truncated)
	assert.LessOrEqual(t, len(out), 20000)
	assert.True(t, strings.HasSuffix(out, "~~~\n"+Marker), "must close with the opening character")
	assert.NotContains(t, out, "```\n"+Marker)
}

// TestTruncateBacktickFence tests backtick fences close with backticks
func TestTruncateBacktickFence(t *testing.T) {
	content := "intro\n\n```go\n" + strings.Repeat("b", 5000) + "\n```\n"

	out, truncated := Truncate(content, 1000)
	require.True(t, truncated)
	assert.True(t, strings.HasSuffix(out, "```\n"+Marker))
}

// TestTruncateLongerFenceCloser tests that a four-char fence gets a four-char closer
func TestTruncateLongerFenceCloser(t *testing.T) {
	content := "````\n" + strings.Repeat("c", 5000) + "\n````\n"

	out, truncated := Truncate(content, 1000)
	require.True(t, truncated)
	assert.True(t, strings.HasSuffix(out, "````\n"+Marker))
}

// TestTruncateClosedFenceNeedsNoCloser tests cutoff past a closed block
func TestTruncateClosedFenceNeedsNoCloser(t *testing.T) {
	content := "```\ncode\n```\n\n" + strings.Repeat("prose ", 1000)

	out, truncated := Truncate(content, 500)
	require.True(t, truncated)
	assert.False(t, strings.HasSuffix(out, "```\n"+Marker), "no open fence at the cutoff")
	assert.True(t, strings.HasSuffix(out, Marker))
}

// TestTruncateShorterRunDoesNotClose tests that a shorter run leaves the fence open
func TestTruncateShorterRunDoesNotClose(t *testing.T) {
	// The inner ``` is shorter than the opening ```` and must not close it.
	content := "````\n```\n" + strings.Repeat("d", 5000) + "\n````\n"

	out, truncated := Truncate(content, 1000)
	require.True(t, truncated)
	assert.True(t, strings.HasSuffix(out, "````\n"+Marker))
}

// TestTruncateMixedFenceCharIgnored tests that tilde runs inside a backtick fence are literal
func TestTruncateMixedFenceCharIgnored(t *testing.T) {
	content := "```\n~~~\n" + strings.Repeat("e", 5000) + "\n```\n"

	out, truncated := Truncate(content, 1000)
	require.True(t, truncated)
	assert.True(t, strings.HasSuffix(out, "```\n"+Marker))
}

// TestTruncateLinkIntegrity tests that links are never bisected
func TestTruncateLinkIntegrity(t *testing.T) {
	prefix := strings.Repeat("x", 80)
	content := prefix + "[link text](https://example.com/long/path)" + strings.Repeat("y", 100)

	// Place the cutoff inside the link span.
	out, truncated := Truncate(content, 100)
	require.True(t, truncated)
	assert.LessOrEqual(t, len(out), 100)
	assert.NotContains(t, out, "[link", "bisected link must be dropped entirely")
}

// TestTruncateImageLinkIntegrity tests image links back off to before the bang
func TestTruncateImageLinkIntegrity(t *testing.T) {
	prefix := strings.Repeat("x", 80)
	content := prefix + "![alt](https://example.com/img.png)" + strings.Repeat("y", 100)

	out, truncated := Truncate(content, 100)
	require.True(t, truncated)
	assert.NotContains(t, out, "![")
}

// TestTruncateCompleteLinkKept tests that a link wholly before the cutoff survives
func TestTruncateCompleteLinkKept(t *testing.T) {
	content := "[ok](https://example.com/)" + strings.Repeat("z", 1000)

	out, truncated := Truncate(content, 500)
	require.True(t, truncated)
	assert.Contains(t, out, "[ok](https://example.com/)")
}

// TestEffectiveLimit tests the per-call/global resolution
func TestEffectiveLimit(t *testing.T) {
	tests := []struct {
		name     string
		perCall  int
		global   int
		expected int
	}{
		{"both set, per-call smaller", 100, 200, 100},
		{"both set, global smaller", 300, 200, 200},
		{"per-call zero uses global", 0, 200, 200},
		{"global zero uses per-call", 100, 0, 100},
		{"both zero means unlimited", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EffectiveLimit(tt.perCall, tt.global))
		})
	}
}
