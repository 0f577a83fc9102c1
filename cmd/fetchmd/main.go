package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/cache"
	"github.com/edgecomet/fetchmd/internal/common/config"
	"github.com/edgecomet/fetchmd/internal/common/logger"
	"github.com/edgecomet/fetchmd/internal/fetch/httpclient"
	"github.com/edgecomet/fetchmd/internal/fetch/pipeline"
	"github.com/edgecomet/fetchmd/internal/fetch/safedns"
	"github.com/edgecomet/fetchmd/internal/mcp"
	"github.com/edgecomet/fetchmd/internal/metrics"
	"github.com/edgecomet/fetchmd/internal/reply"
	"github.com/edgecomet/fetchmd/internal/safeurl"
	"github.com/edgecomet/fetchmd/internal/server"
	"github.com/edgecomet/fetchmd/internal/server/auth"
	"github.com/edgecomet/fetchmd/internal/server/hostgate"
	"github.com/edgecomet/fetchmd/internal/server/ratelimit"
	"github.com/edgecomet/fetchmd/internal/telemetry"
	"github.com/edgecomet/fetchmd/internal/transform"
)

// forceExitAfter bounds a hung graceful shutdown.
const forceExitAfter = 10 * time.Second

func main() {
	configPath := flag.String("c", "", "path to configuration file")
	stdio := flag.Bool("stdio", false, "serve the protocol over stdio instead of HTTP")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No config means no configured logger yet; fall back to the
		// console default to report the failure.
		startupLogger, lerr := logger.NewDefaultLogger()
		if lerr != nil {
			log.Fatalf("configuration error: %v", err)
		}
		startupLogger.Fatal("Configuration error", zap.Error(err))
	}

	zapLogger, err := logger.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting fetchmd",
		zap.String("version", mcp.ServerVersion),
		zap.Bool("stdio", *stdio),
		zap.String("config_path", *configPath))

	// Fetch engine.
	classifier := safeurl.NewClassifier(cfg.Fetcher.BlockedHosts, cfg.Fetcher.BlockedHostSuffixes)
	normalizer := safeurl.NewNormalizer(classifier, cfg.Fetcher.MaxURLLength)
	resolver := safedns.NewResolver(classifier, cfg.Fetcher.DNSTimeout.Std(), zapLogger)
	client := httpclient.NewClient(resolver, normalizer, httpclient.Options{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      cfg.Fetcher.Timeout.Std(),
		MaxRedirects: cfg.Fetcher.MaxRedirects,
		Parallelism:  cfg.Fetcher.Parallelism,
		Preflight:    true,
	}, zapLogger)

	artifactCache := cache.New(cfg.Cache, zapLogger)
	transformer := transform.New(cfg.Fetcher.MaxHTMLSize, cfg.Noise, zapLogger)
	fetchPipeline := pipeline.New(normalizer, client, artifactCache, transformer, cfg.Fetcher, zapLogger)

	// Telemetry and metrics.
	collector := metrics.NewCollector(cfg.Metrics.Namespace, zapLogger)
	fetchPipeline.SetCacheObserver(collector)
	channelEmitter := telemetry.NewChannelEmitter(256, zapLogger)
	emitter := telemetry.NewMultiEmitter(telemetry.NewLogEmitter(zapLogger), channelEmitter)
	tracker := telemetry.NewTracker(emitter, safeurl.NewRedactor(nil), zapLogger)
	go collector.ListenTelemetry(channelEmitter.Events())

	unsubscribe := artifactCache.Subscribe(func(cache.Update) {
		collector.SetCacheEntries(artifactCache.Len())
	})
	defer unsubscribe()

	// Protocol surface.
	shaper := reply.NewShaper(cfg.Fetcher.MaxInlineChars, artifactCache)
	handler := mcp.NewHandler(zapLogger)
	handler.Register(mcp.NewFetchTool(fetchPipeline, shaper, tracker, zapLogger).Tool())

	if *stdio {
		runStdio(handler, emitter, zapLogger)
		return
	}

	verifier, err := auth.NewVerifier(cfg.Auth, zapLogger)
	if err != nil {
		zapLogger.Fatal("Configuration error", zap.Error(err))
	}

	sessions := mcp.NewStore(cfg.Session, zapLogger)
	sessions.Start()

	limiter := ratelimit.New(cfg.RateLimit, zapLogger)
	limiter.Start()

	gate := hostgate.New(cfg.Server.Host, cfg.Server.AllowedHosts, zapLogger)

	srv := server.NewServer(
		cfg.Server,
		cfg.Auth.Mode,
		gate,
		limiter,
		verifier,
		sessions,
		handler,
		artifactCache,
		collector,
		zapLogger,
	)
	if err := srv.Start(); err != nil {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}

	metricsServer := metrics.StartServer(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		collector,
		zapLogger,
	)

	zapLogger.Info("fetchmd started", zap.String("listen", cfg.Server.Listen()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down")
	forceExit := time.AfterFunc(forceExitAfter, func() {
		zapLogger.Error("Graceful shutdown timed out, forcing exit")
		os.Exit(1)
	})
	defer forceExit.Stop()

	// Close sessions and their evictor first so no request outlives its
	// session, then stop the remaining workers and listeners.
	sessions.Shutdown()
	limiter.Shutdown()
	if err := srv.Shutdown(); err != nil {
		zapLogger.Error("Server shutdown error", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(); err != nil {
			zapLogger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if err := emitter.Close(); err != nil {
		zapLogger.Error("Telemetry shutdown error", zap.Error(err))
	}

	zapLogger.Info("fetchmd stopped")
}

// runStdio serves the protocol directly over stdin/stdout; no HTTP
// server, sessions or gates are involved.
func runStdio(handler *mcp.Handler, emitter telemetry.Emitter, zapLogger *zap.Logger) {
	transport := mcp.NewStdioTransport(handler, os.Stdin, os.Stdout, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := transport.Run(ctx); err != nil && ctx.Err() == nil {
		zapLogger.Error("Stdio transport failed", zap.Error(err))
		_ = emitter.Close()
		os.Exit(1)
	}
	_ = emitter.Close()
}
