package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// ServerName and ServerVersion identify the implementation in the
// initialize result and the health endpoint.
const (
	ServerName    = "fetchmd"
	ServerVersion = "1.2.0"
)

// Tool is one callable tool exposed over tools/list and tools/call.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`

	Handler func(ctx context.Context, args json.RawMessage) (*ToolResult, error) `json:"-"`
}

// ContentBlock is one entry of a tool result's content list.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// resource_link fields
	URI      string `json:"uri,omitempty"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// embedded resource
	Resource *EmbeddedResource `json:"resource,omitempty"`
}

// EmbeddedResource carries inline resource contents.
type EmbeddedResource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ToolResult is the tools/call result shape.
type ToolResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// Handler dispatches protocol methods for one server instance. It is
// shared across sessions; per-session state lives in the Store.
type Handler struct {
	tools  []*Tool
	byName map[string]*Tool
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{byName: make(map[string]*Tool), logger: logger}
}

// Register adds a tool to the registry.
func (h *Handler) Register(tool *Tool) {
	h.tools = append(h.tools, tool)
	h.byName[tool.Name] = tool
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// IsInitialize reports whether the request opens a new session.
func (r *Request) IsInitialize() bool { return r.Method == "initialize" }

// Dispatch handles one request and returns the response, or nil for
// notifications.
func (h *Handler) Dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return h.handleInitialize(req)
	case "notifications/initialized", "notifications/cancelled":
		return nil
	case "ping":
		return NewResult(req.ID, map[string]any{})
	case "tools/list":
		return NewResult(req.ID, map[string]any{"tools": h.toolList()})
	case "tools/call":
		return h.handleToolCall(ctx, req)
	default:
		if req.IsNotification() {
			h.logger.Debug("Unknown notification ignored", zap.String("method", req.Method))
			return nil
		}
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (h *Handler) handleInitialize(req *Request) *Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, CodeInvalidParams, "invalid initialize params")
		}
	}
	h.logger.Info("Session initializing",
		zap.String("client", params.ClientInfo.Name),
		zap.String("client_version", params.ClientInfo.Version),
		zap.String("client_protocol", params.ProtocolVersion))

	return NewResult(req.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      serverInfo{Name: ServerName, Version: ServerVersion},
	})
}

func (h *Handler) toolList() []*Tool {
	if h.tools == nil {
		return []*Tool{}
	}
	return h.tools
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (h *Handler) handleToolCall(ctx context.Context, req *Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewError(req.ID, CodeInvalidParams, "invalid tools/call params")
	}
	tool, ok := h.byName[params.Name]
	if !ok {
		return NewError(req.ID, CodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	result, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		// Tool handlers shape their own failures; reaching here means
		// the handler itself broke.
		h.logger.Error("Tool handler failed",
			zap.String("tool", params.Name), zap.Error(err))
		return NewError(req.ID, CodeInternalError, "internal error")
	}
	return NewResult(req.ID, result)
}
