// Package mcp implements the protocol surface: the session store with
// reservation-based admission, the JSON-RPC envelope, and the fetch tool.
package mcp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

// Session is one initialized client connection.
type Session struct {
	ID          string
	CreatedAt   time.Time
	LastSeen    time.Time
	Initialized bool

	// closer tears down the session's transport, set by the owner.
	closer func()
}

// SetCloser attaches the transport teardown hook.
func (s *Session) SetCloser(fn func()) { s.closer = fn }

func (s *Session) close() {
	if s.closer != nil {
		s.closer()
	}
}

// Store holds sessions plus the in-flight reservation counter. The
// admission invariant is size + in_flight <= max at all times.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	inFlight atomic.Int64

	maxSessions int
	ttl         time.Duration
	initTimeout time.Duration

	now func() time.Time // test hook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewStore(cfg configtypes.SessionConfig, logger *zap.Logger) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		sessions:    make(map[string]*Session),
		maxSessions: cfg.MaxSessions,
		ttl:         cfg.TTL.Std(),
		initTimeout: cfg.InitTimeout.Std(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Get returns the session or nil.
func (st *Store) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[id]
}

// Touch refreshes last_seen and reports whether the session exists.
func (st *Store) Touch(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if ok {
		s.LastSeen = st.now()
	}
	return ok
}

// Remove drops the session and closes its transport.
func (st *Store) Remove(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		s.close()
	}
	return ok
}

// Size returns the count of initialized sessions.
func (st *Store) Size() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// InFlight returns the reserved-but-uninitialized count.
func (st *Store) InFlight() int {
	return int(st.inFlight.Load())
}

// Clear closes and removes every session.
func (st *Store) Clear() {
	st.mu.Lock()
	closing := make([]*Session, 0, len(st.sessions))
	for id, s := range st.sessions {
		closing = append(closing, s)
		delete(st.sessions, id)
	}
	st.mu.Unlock()

	for _, s := range closing {
		s.close()
	}
}

// EvictExpired removes sessions idle past the TTL and closes them.
func (st *Store) EvictExpired() []*Session {
	if st.ttl <= 0 {
		return nil
	}
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.LastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	if len(expired) > 0 {
		st.logger.Info("Expired sessions evicted", zap.Int("count", len(expired)))
	}
	return expired
}

// EvictOldest removes and closes the session with the smallest last_seen.
func (st *Store) EvictOldest() *Session {
	st.mu.Lock()
	oldest := st.evictOldestLocked()
	st.mu.Unlock()

	if oldest != nil {
		oldest.close()
		st.logger.Warn("Oldest session evicted under pressure",
			zap.String("session_id", oldest.ID))
	}
	return oldest
}

func (st *Store) evictOldestLocked() *Session {
	var oldest *Session
	for _, s := range st.sessions {
		if oldest == nil || s.LastSeen.Before(oldest.LastSeen) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(st.sessions, oldest.ID)
	}
	return oldest
}

// ErrServerBusy signals that no session slot could be reserved.
type busyError struct{}

func (busyError) Error() string { return "server busy: session capacity reached" }

var ErrServerBusy error = busyError{}

// Reservation holds one in-flight session slot until the initialize
// handshake commits it or the init timeout abandons it.
type Reservation struct {
	store *Store
	timer *time.Timer
	done  atomic.Bool

	onTimeout func()
}

// Reserve takes a session slot. Under pressure one oldest-eviction is
// attempted; if capacity is still exhausted, ErrServerBusy is returned.
// onTimeout runs if the initialize handshake does not complete within the
// init timeout.
func (st *Store) Reserve(onTimeout func()) (*Reservation, error) {
	st.mu.Lock()
	var evicted *Session
	if st.maxSessions > 0 && len(st.sessions)+int(st.inFlight.Load()) >= st.maxSessions {
		evicted = st.evictOldestLocked()
		if len(st.sessions)+int(st.inFlight.Load()) >= st.maxSessions {
			st.mu.Unlock()
			if evicted != nil {
				evicted.close()
			}
			return nil, ErrServerBusy
		}
	}
	st.inFlight.Add(1)
	st.mu.Unlock()

	if evicted != nil {
		evicted.close()
		st.logger.Warn("Oldest session evicted under pressure",
			zap.String("session_id", evicted.ID))
	}

	r := &Reservation{store: st, onTimeout: onTimeout}
	if st.initTimeout > 0 {
		r.timer = time.AfterFunc(st.initTimeout, func() {
			if r.done.CompareAndSwap(false, true) {
				st.inFlight.Add(-1)
				st.logger.Warn("Session initialization timed out")
				if r.onTimeout != nil {
					r.onTimeout()
				}
			}
		})
	}
	return r, nil
}

// Commit registers the initialized session and releases the slot.
func (r *Reservation) Commit(s *Session) bool {
	if !r.done.CompareAndSwap(false, true) {
		return false
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.store.inFlight.Add(-1)

	now := r.store.now()
	s.Initialized = true
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastSeen = now

	r.store.mu.Lock()
	r.store.sessions[s.ID] = s
	r.store.mu.Unlock()
	return true
}

// Abandon releases the slot without registering a session.
func (r *Reservation) Abandon() {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.store.inFlight.Add(-1)
}

// evictorInterval is ttl/2 clamped to [10s, 60s].
func (st *Store) evictorInterval() time.Duration {
	interval := st.ttl / 2
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	if interval > 60*time.Second {
		interval = 60 * time.Second
	}
	return interval
}

// Start runs the background session evictor.
func (st *Store) Start() {
	if st.ttl <= 0 {
		return
	}
	interval := st.evictorInterval()
	st.logger.Info("Session evictor starting",
		zap.Duration("ttl", st.ttl),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	st.wg.Add(1)

	go func() {
		defer st.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				st.EvictExpired()
			case <-st.ctx.Done():
				st.logger.Info("Session evictor shutting down")
				return
			}
		}
	}()
}

// Shutdown closes all sessions and stops the evictor.
func (st *Store) Shutdown() {
	st.Clear()
	st.cancel()
	st.wg.Wait()
}
