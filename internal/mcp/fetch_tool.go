package mcp

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/fetch/pipeline"
	"github.com/edgecomet/fetchmd/internal/fetcherr"
	"github.com/edgecomet/fetchmd/internal/reply"
	"github.com/edgecomet/fetchmd/internal/telemetry"
)

// FetchToolName is the registered name of the fetch tool.
const FetchToolName = "fetch"

const fetchToolDescription = "Fetch a URL, convert the page to Markdown, " +
	"and return it inline or as a cached resource reference."

var fetchToolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "url": {
      "type": "string",
      "description": "Absolute http(s) URL to fetch"
    },
    "max_length": {
      "type": "integer",
      "description": "Maximum inline characters to return (0 = server default)"
    },
    "force_refresh": {
      "type": "boolean",
      "description": "Bypass the cache and refetch"
    },
    "skip_noise_removal": {
      "type": "boolean",
      "description": "Keep navigation, banners and other boilerplate"
    }
  },
  "required": ["url"]
}`)

type fetchArgs struct {
	URL              string `json:"url"`
	MaxLength        int    `json:"max_length"`
	ForceRefresh     bool   `json:"force_refresh"`
	SkipNoiseRemoval bool   `json:"skip_noise_removal"`
}

// fetchFailure is the structured payload of a failed fetch.
type fetchFailure struct {
	Error      string         `json:"error"`
	URL        string         `json:"url,omitempty"`
	StatusCode int            `json:"statusCode,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// FetchTool wires the pipeline, shaper and telemetry into a tool.
type FetchTool struct {
	pipeline *pipeline.Pipeline
	shaper   *reply.Shaper
	tracker  *telemetry.Tracker
	logger   *zap.Logger
}

func NewFetchTool(p *pipeline.Pipeline, shaper *reply.Shaper, tracker *telemetry.Tracker, logger *zap.Logger) *FetchTool {
	return &FetchTool{pipeline: p, shaper: shaper, tracker: tracker, logger: logger}
}

// Tool returns the registry entry.
func (ft *FetchTool) Tool() *Tool {
	return &Tool{
		Name:        FetchToolName,
		Description: fetchToolDescription,
		InputSchema: fetchToolSchema,
		Handler:     ft.Call,
	}
}

// Call runs one fetch. Fetch failures become isError results carrying the
// structured failure, never transport-level errors.
func (ft *FetchTool) Call(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	var in fetchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return errorResult(fetcherr.Validation("invalid fetch arguments: %v", err), ""), nil
	}
	if in.URL == "" {
		return errorResult(fetcherr.Validation("url is required"), ""), nil
	}

	requestID := uuid.NewString()
	trace := ft.tracker.Start(requestID, FetchToolName, in.URL, requestIDFrom(ctx), "")
	logger := ft.logger.With(zap.String("request_id", requestID))

	result, err := ft.pipeline.Fetch(ctx, pipeline.Request{
		URL:              in.URL,
		Namespace:        cache.NamespaceMarkdown,
		ForceRefresh:     in.ForceRefresh,
		SkipNoiseRemoval: in.SkipNoiseRemoval,
	})
	if err != nil {
		trace.Error(err)
		fe := fetcherr.From(err)
		logger.Warn("Fetch failed",
			zap.String("url", in.URL),
			zap.String("code", fe.Code),
			zap.Int("status", fe.StatusCode),
			zap.String("message", fe.Message))
		return errorResult(fe, in.URL), nil
	}

	if result.FinalURL != "" {
		trace.SetFinalURL(result.FinalURL)
	}
	trace.End(200)

	shaped := ft.shaper.Shape(result, in.MaxLength)
	logger.Info("Fetch completed",
		zap.String("url", shaped.ResolvedURL),
		zap.Bool("from_cache", shaped.FromCache),
		zap.Int("content_size", shaped.ContentSize),
		zap.Bool("truncated", shaped.Truncated))

	return ft.shapeResult(shaped), nil
}

// shapeResult renders the reply as content blocks: the JSON text block,
// a resource link when the artifact is cached, and an embedded resource
// for the inline markdown.
func (ft *FetchTool) shapeResult(shaped *reply.Reply) *ToolResult {
	body, err := json.Marshal(shaped)
	if err != nil {
		return errorResult(fetcherr.Internal(err), shaped.URL)
	}

	blocks := []ContentBlock{{Type: "text", Text: string(body)}}
	if shaped.CacheResourceURI != "" {
		blocks = append(blocks, ContentBlock{
			Type:     "resource_link",
			URI:      shaped.CacheResourceURI,
			Name:     shaped.Title,
			MimeType: "text/markdown",
		})
	}
	if shaped.Markdown != "" && shaped.ResolvedURL != "" {
		blocks = append(blocks, ContentBlock{
			Type: "resource",
			Resource: &EmbeddedResource{
				URI:      shaped.ResolvedURL,
				MimeType: "text/markdown",
				Text:     shaped.Markdown,
			},
		})
	}

	return &ToolResult{Content: blocks, StructuredContent: shaped}
}

func errorResult(fe *fetcherr.Error, url string) *ToolResult {
	failure := &fetchFailure{
		Error:      fe.Message,
		URL:        url,
		StatusCode: fe.StatusCode,
		Details:    fe.Details,
	}
	if fe.URL != "" {
		failure.URL = fe.URL
	}

	body, err := json.Marshal(failure)
	if err != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	return &ToolResult{
		Content:           []ContentBlock{{Type: "text", Text: string(body)}},
		StructuredContent: failure,
		IsError:           true,
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID stores the transport-level request ID for correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
