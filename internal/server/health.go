package server

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/valyala/fasthttp"

	"github.com/edgecomet/fetchmd/internal/mcp"
)

type healthResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	MemoryMB float64 `json:"memory_mb,omitempty"`
	Sessions int     `json:"sessions"`
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	resp := healthResponse{
		Status:   "ok",
		Name:     mcp.ServerName,
		Version:  mcp.ServerVersion,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Sessions: s.sessions.Size(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			resp.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	body, err := json.Marshal(resp)
	if err != nil {
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
	ctx.Response.SetBody(body)
}
