package metrics

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Handler serves a metrics scrape over fasthttp.
type Handler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// StartServer starts the dedicated metrics listener. Returns nil when
// metrics are disabled; the caller shuts the server down on exit.
func StartServer(enabled bool, listen, path string, handler Handler, logger *zap.Logger) *fasthttp.Server {
	if !enabled {
		logger.Info("Metrics collection disabled")
		return nil
	}

	server := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == path {
				handler.ServeHTTP(ctx)
				return
			}
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		},
		Name:               "fetchmd-metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1024,
		Concurrency:        100,
	}

	go func() {
		logger.Info("Metrics server listening",
			zap.String("listen", listen),
			zap.String("path", path))
		if err := server.ListenAndServe(listen); err != nil {
			logger.Error("Metrics server stopped",
				zap.String("listen", listen),
				zap.Error(err))
		}
	}()

	return server
}
