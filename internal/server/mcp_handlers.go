package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/fetcherr"
	"github.com/edgecomet/fetchmd/internal/mcp"
	"github.com/edgecomet/fetchmd/internal/server/auth"
)

// handleMCP serves the protocol endpoint.
func (s *Server) handleMCP(ctx *fasthttp.RequestCtx, requestID string, logger *zap.Logger) {
	verdict := s.limiter.Allow(clientKey(ctx))
	if !verdict.Allowed {
		s.collector.RecordRateLimited()
		s.writeError(ctx, fetcherr.RateLimited(verdict.RetryAfterSeconds))
		return
	}

	token := auth.BearerToken(
		string(ctx.Request.Header.Peek("Authorization")),
		string(ctx.Request.Header.Peek("X-API-Key")),
		s.authMode)
	if token == "" {
		s.writeUnauthorized(ctx, "Missing bearer token")
		return
	}
	if _, err := s.verifier.Verify(ctx, token); err != nil {
		if !errors.Is(err, auth.ErrUnauthorized) {
			logger.Error("Token verification failed", zap.Error(err))
		}
		s.writeUnauthorized(ctx, "Invalid token")
		return
	}

	switch {
	case ctx.IsPost():
		s.handleMCPPost(ctx, requestID, logger)
	case ctx.IsGet():
		s.handleMCPGet(ctx, logger)
	case ctx.IsDelete():
		s.handleMCPDelete(ctx, logger)
	default:
		s.writeError(ctx, &fetcherr.Error{
			Kind: fetcherr.KindValidation, Code: fetcherr.CodeBadRequest,
			StatusCode: fasthttp.StatusMethodNotAllowed, Message: "Method not allowed",
		})
	}
}

func (s *Server) handleMCPPost(ctx *fasthttp.RequestCtx, requestID string, logger *zap.Logger) {
	if string(ctx.Request.Header.Peek(ProtocolVersionHeader)) != mcp.ProtocolVersion {
		s.writeBadRequest(ctx, "Missing or unsupported "+ProtocolVersionHeader)
		return
	}
	if len(ctx.Request.Header.Peek("Accept")) == 0 {
		ctx.Request.Header.Set("Accept", "application/json, text/event-stream")
	}

	req, rpcErr := mcp.ParseRequest(ctx.PostBody())
	if rpcErr != nil {
		writeRPCResponse(ctx, fasthttp.StatusBadRequest,
			mcp.NewError(nil, rpcErr.Code, rpcErr.Message))
		return
	}

	reqCtx := mcp.WithRequestID(ctx, requestID)
	sessionID := string(ctx.Request.Header.Peek(SessionIDHeader))

	if sessionID == "" {
		if !req.IsInitialize() {
			s.writeBadRequest(ctx, "Missing "+SessionIDHeader)
			return
		}

		reservation, err := s.sessions.Reserve(nil)
		if err != nil {
			logger.Warn("Session admission rejected")
			s.writeError(ctx, &fetcherr.Error{
				Kind: fetcherr.KindValidation, Code: fetcherr.CodeServerBusy,
				StatusCode: fasthttp.StatusServiceUnavailable, Message: "Server busy",
			})
			return
		}

		resp := s.handler.Dispatch(reqCtx, req)
		if resp == nil || resp.Error != nil {
			reservation.Abandon()
			s.publishSessionGauges()
			writeRPCResponse(ctx, fasthttp.StatusOK, resp)
			return
		}

		newID := uuid.NewString()
		reservation.Commit(&mcp.Session{ID: newID})
		s.publishSessionGauges()
		logger.Info("Session initialized", zap.String("session_id", newID))

		ctx.Response.Header.Set(SessionIDHeader, newID)
		writeRPCResponse(ctx, fasthttp.StatusOK, resp)
		return
	}

	if !s.sessions.Touch(sessionID) {
		s.writeNotFound(ctx, "Unknown session")
		return
	}

	resp := s.handler.Dispatch(reqCtx, req)
	if resp == nil {
		ctx.Response.SetStatusCode(fasthttp.StatusAccepted)
		return
	}
	writeRPCResponse(ctx, fasthttp.StatusOK, resp)
}

// handleMCPGet opens the server-to-client event stream for an existing
// session. No server-initiated messages are produced today, so the stream
// carries keepalives until the session goes away.
func (s *Server) handleMCPGet(ctx *fasthttp.RequestCtx, logger *zap.Logger) {
	if !strings.Contains(string(ctx.Request.Header.Peek("Accept")), "text/event-stream") {
		s.writeBadRequest(ctx, "Accept must include text/event-stream")
		return
	}

	sessionID := string(ctx.Request.Header.Peek(SessionIDHeader))
	if sessionID == "" || !s.sessions.Touch(sessionID) {
		s.writeNotFound(ctx, "Unknown session")
		return
	}

	ctx.Response.Header.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.SetStatusCode(fasthttp.StatusOK)

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			if s.sessions.Get(sessionID) == nil {
				return
			}
			if _, err := w.WriteString(": keepalive\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	logger.Debug("Event stream opened", zap.String("session_id", sessionID))
}

func (s *Server) handleMCPDelete(ctx *fasthttp.RequestCtx, logger *zap.Logger) {
	sessionID := string(ctx.Request.Header.Peek(SessionIDHeader))
	if sessionID == "" || !s.sessions.Remove(sessionID) {
		s.writeNotFound(ctx, "Unknown session")
		return
	}
	s.publishSessionGauges()
	logger.Info("Session closed", zap.String("session_id", sessionID))
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
}

func (s *Server) publishSessionGauges() {
	s.collector.SetActiveSessions(s.sessions.Size())
	s.collector.SetInFlightSessions(s.sessions.InFlight())
}

func writeRPCResponse(ctx *fasthttp.RequestCtx, status int, resp *mcp.Response) {
	if resp == nil {
		ctx.Response.SetStatusCode(fasthttp.StatusAccepted)
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBody(body)
}
