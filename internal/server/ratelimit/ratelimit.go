// Package ratelimit provides a per-client fixed-window request limiter
// with periodic eviction of stale client entries.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

type entry struct {
	count        int
	resetAt      time.Time
	lastAccessed time.Time
}

// Verdict is the outcome of one admission check.
type Verdict struct {
	Allowed bool
	// RetryAfterSeconds accompanies a rejection, rounded up to whole
	// seconds until the window resets.
	RetryAfterSeconds int
}

// Limiter is a fixed-window counter keyed by client identifier.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*entry

	maxRequests     int
	window          time.Duration
	cleanupInterval time.Duration
	enabled         bool

	now func() time.Time // test hook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New builds a limiter from configuration. Call Start to run the stale
// entry evictor.
func New(cfg configtypes.RateLimitConfig, logger *zap.Logger) *Limiter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		clients:         make(map[string]*entry),
		maxRequests:     cfg.MaxRequests,
		window:          cfg.Window.Std(),
		cleanupInterval: cfg.CleanupInterval.Std(),
		enabled:         cfg.Enabled,
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger,
	}
}

// Allow admits or rejects one request from client key.
func (l *Limiter) Allow(key string) Verdict {
	if !l.enabled {
		return Verdict{Allowed: true}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.clients[key]
	if !ok || now.After(e.resetAt) {
		l.clients[key] = &entry{
			count:        1,
			resetAt:      now.Add(l.window),
			lastAccessed: now,
		}
		return Verdict{Allowed: true}
	}

	e.count++
	e.lastAccessed = now
	if e.count > l.maxRequests {
		retryAfter := int(math.Ceil(e.resetAt.Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Verdict{Allowed: false, RetryAfterSeconds: retryAfter}
	}
	return Verdict{Allowed: true}
}

// Start runs the background evictor.
func (l *Limiter) Start() {
	if !l.enabled || l.cleanupInterval <= 0 {
		return
	}
	l.logger.Info("Rate limiter starting",
		zap.Int("max_requests", l.maxRequests),
		zap.Duration("window", l.window),
		zap.Duration("cleanup_interval", l.cleanupInterval))

	ticker := time.NewTicker(l.cleanupInterval)
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.evictStale()
			case <-l.ctx.Done():
				l.logger.Info("Rate limiter shutting down")
				return
			}
		}
	}()
}

// Shutdown stops the evictor and waits for it.
func (l *Limiter) Shutdown() {
	l.cancel()
	l.wg.Wait()
}

// evictStale drops clients idle for more than two windows.
func (l *Limiter) evictStale() {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	evicted := 0
	for key, e := range l.clients {
		if e.lastAccessed.Before(cutoff) {
			delete(l.clients, key)
			evicted++
		}
	}
	remaining := len(l.clients)
	l.mu.Unlock()

	if evicted > 0 {
		l.logger.Debug("Rate limit entries evicted",
			zap.Int("evicted", evicted),
			zap.Int("remaining", remaining))
	}
}

// Size returns the tracked client count.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
