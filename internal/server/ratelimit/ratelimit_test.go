package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

func newTestLimiter(maxRequests int, window time.Duration) (*Limiter, *time.Time) {
	l := New(configtypes.RateLimitConfig{
		Enabled:         true,
		MaxRequests:     maxRequests,
		Window:          configtypes.Duration(window),
		CleanupInterval: configtypes.Duration(time.Minute),
	}, zap.NewNop())

	current := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

// TestLimiterAdmitsWithinWindow tests admission under the limit
func TestLimiterAdmitsWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client-a").Allowed, "request %d", i+1)
	}
}

// TestLimiterRejectsOverLimit tests the 429 verdict with Retry-After
func TestLimiterRejectsOverLimit(t *testing.T) {
	l, current := newTestLimiter(2, time.Minute)

	assert.True(t, l.Allow("client-a").Allowed)
	*current = current.Add(10 * time.Second)
	assert.True(t, l.Allow("client-a").Allowed)

	verdict := l.Allow("client-a")
	assert.False(t, verdict.Allowed)
	// Window resets 60s after the first request; 50s remain, rounded up.
	assert.Equal(t, 50, verdict.RetryAfterSeconds)
}

// TestLimiterWindowReset tests a fresh window after expiry
func TestLimiterWindowReset(t *testing.T) {
	l, current := newTestLimiter(1, time.Minute)

	assert.True(t, l.Allow("client-a").Allowed)
	assert.False(t, l.Allow("client-a").Allowed)

	*current = current.Add(61 * time.Second)
	assert.True(t, l.Allow("client-a").Allowed, "new window admits again")
}

// TestLimiterKeysAreIndependent tests per-client isolation
func TestLimiterKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	assert.True(t, l.Allow("client-a").Allowed)
	assert.False(t, l.Allow("client-a").Allowed)
	assert.True(t, l.Allow("client-b").Allowed, "other clients are unaffected")
}

// TestLimiterDisabled tests the disabled passthrough
func TestLimiterDisabled(t *testing.T) {
	l := New(configtypes.RateLimitConfig{Enabled: false}, zap.NewNop())

	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("client-a").Allowed)
	}
	assert.Equal(t, 0, l.Size())
}

// TestLimiterEvictStale tests the two-window idle eviction rule
func TestLimiterEvictStale(t *testing.T) {
	l, current := newTestLimiter(10, time.Minute)

	l.Allow("old-client")
	*current = current.Add(3 * time.Minute)
	l.Allow("fresh-client")

	l.evictStale()
	assert.Equal(t, 1, l.Size(), "idle > 2 windows is evicted, fresh survives")
}
