package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/common/configtypes"
	"github.com/edgecomet/fetchmd/internal/fetch/httpclient"
	"github.com/edgecomet/fetchmd/internal/fetch/pipeline"
	"github.com/edgecomet/fetchmd/internal/reply"
	"github.com/edgecomet/fetchmd/internal/safeurl"
	"github.com/edgecomet/fetchmd/internal/telemetry"
	"github.com/edgecomet/fetchmd/internal/transform"
)

type stubFetcher struct {
	handler func(url string) (*httpclient.Result, error)
}

func (s *stubFetcher) Fetch(_ context.Context, url string, _ map[string]string) (*httpclient.Result, error) {
	return s.handler(url)
}

func htmlResult(url, body string) *httpclient.Result {
	h := make(http.Header)
	h.Set("Content-Type", "text/html; charset=utf-8")
	return &httpclient.Result{
		Response: &http.Response{
			StatusCode:    200,
			Header:        h,
			Body:          io.NopCloser(bytes.NewReader([]byte(body))),
			ContentLength: int64(len(body)),
		},
		FinalURL: url,
	}
}

func newTestFetchTool(t *testing.T, fetcher pipeline.Fetcher) (*FetchTool, *telemetry.ChannelEmitter) {
	t.Helper()
	logger := zap.NewNop()
	classifier := safeurl.NewClassifier(nil, []string{".local", ".internal"})
	normalizer := safeurl.NewNormalizer(classifier, 2048)
	artifactCache := cache.New(configtypes.CacheConfig{
		Enabled:     true,
		MaxEntries:  10,
		Compression: configtypes.CompressionNone,
	}, logger)
	transformer := transform.New(0, configtypes.NoiseConfig{}, logger)

	p := pipeline.New(normalizer, fetcher, artifactCache, transformer, configtypes.FetcherConfig{
		MaxContentBytes: 1024 * 1024,
	}, logger)

	emitter := telemetry.NewChannelEmitter(16, logger)
	tracker := telemetry.NewTracker(emitter, safeurl.NewRedactor(nil), logger)
	shaper := reply.NewShaper(0, artifactCache)

	return NewFetchTool(p, shaper, tracker, logger), emitter
}

// TestFetchToolHappyPath tests the full tool call shape
func TestFetchToolHappyPath(t *testing.T) {
	fetcher := &stubFetcher{handler: func(url string) (*httpclient.Result, error) {
		return htmlResult(url, "<html><head><title>Test Page</title></head><body><p>Hello</p></body></html>"), nil
	}}
	ft, emitter := newTestFetchTool(t, fetcher)

	result, err := ft.Call(context.Background(), json.RawMessage(`{"url":"https://example.com/test"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	shaped, ok := result.StructuredContent.(*reply.Reply)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/test", shaped.URL)
	assert.Equal(t, "Test Page", shaped.Title)
	assert.Contains(t, shaped.Markdown, "Hello")
	assert.NotEmpty(t, shaped.CacheResourceURI, "stored artifact is advertised")

	// Text block carries the structured reply as JSON.
	var decoded reply.Reply
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &decoded))
	assert.Equal(t, shaped.Title, decoded.Title)

	// Resource link and embedded markdown follow the text block.
	var kinds []string
	for _, b := range result.Content {
		kinds = append(kinds, b.Type)
	}
	assert.Equal(t, []string{"text", "resource_link", "resource"}, kinds)

	// Telemetry emitted a start/end pair.
	assert.Equal(t, telemetry.TypeStart, (<-emitter.Events()).Type)
	end := <-emitter.Events()
	assert.Equal(t, telemetry.TypeEnd, end.Type)
	assert.Equal(t, 200, end.Status)
}

// TestFetchToolBlockedURL tests the isError shape for blocked targets
func TestFetchToolBlockedURL(t *testing.T) {
	fetcher := &stubFetcher{handler: func(url string) (*httpclient.Result, error) {
		t.Fatal("fetcher must not run for blocked hosts")
		return nil, nil
	}}
	ft, emitter := newTestFetchTool(t, fetcher)

	result, err := ft.Call(context.Background(), json.RawMessage(`{"url":"http://127.0.0.1/"}`))
	require.NoError(t, err, "fetch failures are results, not errors")
	assert.True(t, result.IsError)

	failure, ok := result.StructuredContent.(*fetchFailure)
	require.True(t, ok)
	assert.Contains(t, failure.Error, "Blocked IP range")
	assert.Equal(t, 400, failure.StatusCode)

	assert.Equal(t, telemetry.TypeStart, (<-emitter.Events()).Type)
	errEvent := <-emitter.Events()
	assert.Equal(t, telemetry.TypeError, errEvent.Type)
	assert.Equal(t, "VALIDATION_ERROR", errEvent.Code)
}

// TestFetchToolMissingURL tests argument validation
func TestFetchToolMissingURL(t *testing.T) {
	ft, _ := newTestFetchTool(t, &stubFetcher{})

	result, err := ft.Call(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = ft.Call(context.Background(), json.RawMessage(`{"url":`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// TestFetchToolMaxLength tests per-call truncation
func TestFetchToolMaxLength(t *testing.T) {
	long := "<html><head><title>Long</title></head><body><p>" +
		string(bytes.Repeat([]byte("word "), 2000)) + "</p></body></html>"
	fetcher := &stubFetcher{handler: func(url string) (*httpclient.Result, error) {
		return htmlResult(url, long), nil
	}}
	ft, _ := newTestFetchTool(t, fetcher)

	result, err := ft.Call(context.Background(), json.RawMessage(`{"url":"https://example.com/long","max_length":500}`))
	require.NoError(t, err)

	shaped := result.StructuredContent.(*reply.Reply)
	assert.True(t, shaped.Truncated)
	assert.LessOrEqual(t, len(shaped.Markdown), 500)
	assert.Greater(t, shaped.ContentSize, 500, "content size reports the pre-truncation length")
}
