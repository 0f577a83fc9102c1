package server

import (
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/fetch/pipeline"
	"github.com/edgecomet/fetchmd/internal/fetcherr"
	"github.com/edgecomet/fetchmd/internal/reply"
)

// handleDownload serves a cached artifact as markdown. Only the markdown
// namespace is exposed; hashes must look like fingerprint hashes before
// any lookup happens.
func (s *Server) handleDownload(ctx *fasthttp.RequestCtx, path string, logger *zap.Logger) {
	if !ctx.IsGet() {
		s.writeError(ctx, &fetcherr.Error{
			Kind: fetcherr.KindValidation, Code: fetcherr.CodeBadRequest,
			StatusCode: fasthttp.StatusMethodNotAllowed, Message: "Method not allowed",
		})
		return
	}

	rest := strings.TrimPrefix(path, reply.DownloadPathPrefix+"/")
	namespace, hash, ok := strings.Cut(rest, "/")
	if !ok || strings.Contains(hash, "/") {
		s.writeBadRequest(ctx, "Malformed download path")
		return
	}
	if namespace != cache.NamespaceMarkdown {
		s.writeBadRequest(ctx, "Unknown namespace")
		return
	}
	if !cache.ValidHash(hash) {
		s.writeBadRequest(ctx, "Malformed artifact hash")
		return
	}

	if !s.cache.Enabled() {
		s.writeError(ctx, &fetcherr.Error{
			Kind: fetcherr.KindValidation, Code: fetcherr.CodeServerBusy,
			StatusCode: fasthttp.StatusServiceUnavailable, Message: "Cache is disabled",
		})
		return
	}

	fp := cache.Fingerprint{Namespace: namespace, Hash: hash}
	entry := s.cache.Get(fp)
	if entry == nil {
		s.writeNotFound(ctx, "Artifact not found")
		return
	}

	artifact, err := pipeline.DecodeArtifact(entry.Content)
	if err != nil {
		logger.Warn("Cached artifact is undecodable",
			zap.String("fingerprint", fp.String()), zap.Error(err))
		s.writeNotFound(ctx, "Artifact not found")
		return
	}

	ctx.Response.Header.SetContentType("text/markdown; charset=utf-8")
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
	ctx.Response.SetBodyString(artifact.Markdown)
}
