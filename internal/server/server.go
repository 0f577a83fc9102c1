// Package server is the HTTP edge: request routing, admission gates
// (host/origin, rate limit, auth), session dispatch for the protocol
// endpoint, and the cached-artifact download route.
package server

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/common/configtypes"
	"github.com/edgecomet/fetchmd/internal/common/requestid"
	"github.com/edgecomet/fetchmd/internal/mcp"
	"github.com/edgecomet/fetchmd/internal/metrics"
	"github.com/edgecomet/fetchmd/internal/reply"
	"github.com/edgecomet/fetchmd/internal/server/auth"
	"github.com/edgecomet/fetchmd/internal/server/hostgate"
	"github.com/edgecomet/fetchmd/internal/server/ratelimit"
)

// SessionIDHeader carries the protocol session identifier.
const SessionIDHeader = "Mcp-Session-Id"

// ProtocolVersionHeader is required on protocol requests.
const ProtocolVersionHeader = "MCP-Protocol-Version"

type Server struct {
	cfg      configtypes.ServerConfig
	authMode string

	gate     *hostgate.Gate
	limiter  *ratelimit.Limiter
	verifier auth.Verifier
	sessions *mcp.Store
	handler  *mcp.Handler

	cache     *cache.Cache
	collector *metrics.Collector
	logger    *zap.Logger

	startTime time.Time
	httpSrv   *fasthttp.Server
}

func NewServer(
	cfg configtypes.ServerConfig,
	authMode string,
	gate *hostgate.Gate,
	limiter *ratelimit.Limiter,
	verifier auth.Verifier,
	sessions *mcp.Store,
	handler *mcp.Handler,
	artifactCache *cache.Cache,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		authMode:  authMode,
		gate:      gate,
		limiter:   limiter,
		verifier:  verifier,
		sessions:  sessions,
		handler:   handler,
		cache:     artifactCache,
		collector: collector,
		logger:    logger,
		startTime: time.Now(),
	}
}

// HandleRequest routes one request.
func (s *Server) HandleRequest(ctx *fasthttp.RequestCtx) {
	customRequestID := string(ctx.Request.Header.Peek("X-Request-ID"))
	requestID := requestid.Generate(customRequestID)
	ctx.Response.Header.Set("X-Request-ID", requestID)

	logger := s.logger.With(zap.String("request_id", requestID))
	path := string(ctx.Path())

	if path == "/health" && ctx.IsGet() {
		s.handleHealth(ctx)
		return
	}

	if !s.gate.AllowHost(string(ctx.Host())) {
		s.writeForbidden(ctx, "Host not allowed")
		return
	}
	if !s.gate.AllowOrigin(string(ctx.Request.Header.Peek("Origin"))) {
		s.writeForbidden(ctx, "Origin not allowed")
		return
	}

	switch {
	case path == "/mcp":
		s.handleMCP(ctx, requestID, logger)
	case strings.HasPrefix(path, reply.DownloadPathPrefix+"/"):
		s.handleDownload(ctx, path, logger)
	default:
		logger.Debug("Not found", zap.String("path", path))
		s.writeNotFound(ctx, "Endpoint not found")
	}
}

// clientKey resolves the rate-limit key from the peer address.
func clientKey(ctx *fasthttp.RequestCtx) string {
	return ctx.RemoteIP().String()
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.httpSrv = &fasthttp.Server{
		Handler:            s.HandleRequest,
		Name:               mcp.ServerName,
		ReadTimeout:        s.cfg.HeadersTimeout.Std(),
		WriteTimeout:       s.cfg.RequestTimeout.Std(),
		IdleTimeout:        s.cfg.KeepAliveTimeout.Std(),
		MaxRequestBodySize: 1 << 20,
		StreamRequestBody:  false,
	}

	listen := s.cfg.Listen()
	ln, err := newListener(listen)
	if err != nil {
		return err
	}

	go func() {
		s.logger.Info("Server listening", zap.String("listen", listen))
		if err := s.httpSrv.Serve(ln); err != nil {
			s.logger.Error("Server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops accepting and drains in-flight requests.
func (s *Server) Shutdown() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown()
}
