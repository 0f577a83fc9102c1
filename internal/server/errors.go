package server

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/fetchmd/internal/fetcherr"
)

// errorBody is the HTTP error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message    string         `json:"message"`
	Code       string         `json:"code"`
	StatusCode int            `json:"statusCode"`
	Details    map[string]any `json:"details,omitempty"`
}

// writeError renders a typed error as JSON. 429 responses also carry a
// Retry-After header from the error details.
func (s *Server) writeError(ctx *fasthttp.RequestCtx, fe *fetcherr.Error) {
	status := fe.StatusCode
	if status == 0 {
		status = fasthttp.StatusInternalServerError
	}

	if status == fasthttp.StatusTooManyRequests {
		if retryAfter, ok := fe.Details["retryAfter"].(int); ok {
			ctx.Response.Header.Set("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	body, err := json.Marshal(errorBody{Error: errorDetail{
		Message:    fe.Message,
		Code:       fe.Code,
		StatusCode: status,
		Details:    fe.Details,
	}})
	if err != nil {
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBody(body)
}

func (s *Server) writeForbidden(ctx *fasthttp.RequestCtx, message string) {
	s.writeError(ctx, &fetcherr.Error{
		Kind: fetcherr.KindValidation, Code: fetcherr.CodeForbidden,
		StatusCode: fasthttp.StatusForbidden, Message: message,
	})
}

func (s *Server) writeNotFound(ctx *fasthttp.RequestCtx, message string) {
	s.writeError(ctx, &fetcherr.Error{
		Kind: fetcherr.KindValidation, Code: fetcherr.CodeNotFound,
		StatusCode: fasthttp.StatusNotFound, Message: message,
	})
}

func (s *Server) writeBadRequest(ctx *fasthttp.RequestCtx, message string) {
	s.writeError(ctx, &fetcherr.Error{
		Kind: fetcherr.KindValidation, Code: fetcherr.CodeBadRequest,
		StatusCode: fasthttp.StatusBadRequest, Message: message,
	})
}

func (s *Server) writeUnauthorized(ctx *fasthttp.RequestCtx, message string) {
	ctx.Response.Header.Set("WWW-Authenticate", `Bearer realm="mcp"`)
	s.writeError(ctx, &fetcherr.Error{
		Kind: fetcherr.KindValidation, Code: fetcherr.CodeUnauthorized,
		StatusCode: fasthttp.StatusUnauthorized, Message: message,
	})
}
