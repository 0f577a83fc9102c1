package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

// Meta is the descriptive part of an artifact stored alongside its bytes.
type Meta struct {
	URL       string
	Title     string
	FetchedAt time.Time
}

// Entry is the immutable view handed to callers on a hit.
type Entry struct {
	Content   []byte
	URL       string
	Title     string
	FetchedAt time.Time
}

// Update describes a mutation, delivered synchronously to listeners.
type Update struct {
	Namespace   string
	URLHash     string
	Fingerprint string
}

// UpdateListener receives cache mutations. Listeners run on the mutating
// goroutine, outside the cache lock; they must not call back into the
// cache synchronously.
type UpdateListener func(Update)

type record struct {
	content     []byte
	compression string
	url         string
	title       string
	fetchedAt   time.Time
	order       uint64
	elem        *list.Element // position in insertion order
}

// Cache is an in-process fingerprint-to-artifact store with bounded
// capacity. Eviction removes the oldest insertion; Get never reorders.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*record
	order   *list.List // front = oldest insertion, values are map keys
	nextSeq uint64

	maxEntries  int
	ttl         time.Duration
	compression string
	enabled     bool

	listenerMu sync.Mutex
	listeners  map[int]UpdateListener
	listenerID int

	logger *zap.Logger
}

// New builds a cache from configuration. A disabled cache accepts all
// operations but stores nothing.
func New(cfg configtypes.CacheConfig, logger *zap.Logger) *Cache {
	return &Cache{
		entries:     make(map[string]*record),
		order:       list.New(),
		maxEntries:  cfg.MaxEntries,
		ttl:         time.Duration(cfg.TTLSeconds) * time.Second,
		compression: cfg.Compression,
		enabled:     cfg.Enabled,
		listeners:   make(map[int]UpdateListener),
		logger:      logger,
	}
}

// Enabled reports whether the cache stores anything at all.
func (c *Cache) Enabled() bool { return c.enabled }

// Get returns the entry for fp, or nil on a miss. Entries past the TTL
// are dropped lazily and reported as misses. The returned content is a
// decompressed copy owned by the caller.
func (c *Cache) Get(fp Fingerprint) *Entry {
	if !c.enabled {
		return nil
	}
	key := fp.String()

	c.mu.Lock()
	rec, ok := c.entries[key]
	if ok && c.ttl > 0 && time.Since(rec.fetchedAt) > c.ttl {
		c.removeLocked(key, rec)
		ok = false
	}
	if !ok {
		c.mu.Unlock()
		return nil
	}
	content := rec.content
	compression := rec.compression
	entry := &Entry{URL: rec.url, Title: rec.title, FetchedAt: rec.fetchedAt}
	c.mu.Unlock()

	decoded, err := decompress(content, compression)
	if err != nil {
		// Treat a corrupt entry as a miss so the pipeline rebuilds it.
		c.logger.Warn("Cache entry decompression failed, dropping",
			zap.String("fingerprint", key), zap.Error(err))
		c.Delete(fp)
		return nil
	}
	entry.Content = decoded
	return entry
}

// Set stores content under fp. With force, an existing entry is evicted
// first so the write always lands with a fresh insertion order. Listeners
// observe the store after the lock is released.
func (c *Cache) Set(fp Fingerprint, content []byte, meta Meta, force bool) error {
	if !c.enabled {
		return nil
	}
	stored, compression, err := compress(content, c.compression)
	if err != nil {
		// Fall back to the raw bytes rather than failing the request.
		c.logger.Warn("Cache compression failed, storing raw",
			zap.String("fingerprint", fp.String()), zap.Error(err))
		stored, compression = content, ""
	}

	key := fp.String()
	fetchedAt := meta.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		if force {
			c.removeLocked(key, existing)
		} else {
			// Replace-on-write keeps the key but takes a new order slot.
			c.order.Remove(existing.elem)
			delete(c.entries, key)
		}
	}

	c.nextSeq++
	rec := &record{
		content:     stored,
		compression: compression,
		url:         meta.URL,
		title:       meta.Title,
		fetchedAt:   fetchedAt,
		order:       c.nextSeq,
	}
	rec.elem = c.order.PushBack(key)
	c.entries[key] = rec

	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		oldKey := oldest.Value.(string)
		c.removeLocked(oldKey, c.entries[oldKey])
	}
	c.mu.Unlock()

	c.emit(fp)
	return nil
}

// Delete removes fp and reports whether it was present.
func (c *Cache) Delete(fp Fingerprint) bool {
	key := fp.String()

	c.mu.Lock()
	rec, ok := c.entries[key]
	if ok {
		c.removeLocked(key, rec)
	}
	c.mu.Unlock()

	if ok {
		c.emit(fp)
	}
	return ok
}

// Clear drops every entry without notifying listeners.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*record)
	c.order.Init()
	c.mu.Unlock()
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Subscribe registers a listener and returns its removal function. The
// cache holds only the function value, never the subscriber.
func (c *Cache) Subscribe(fn UpdateListener) func() {
	c.listenerMu.Lock()
	c.listenerID++
	id := c.listenerID
	c.listeners[id] = fn
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}

func (c *Cache) removeLocked(key string, rec *record) {
	c.order.Remove(rec.elem)
	delete(c.entries, key)
}

func (c *Cache) emit(fp Fingerprint) {
	update := Update{
		Namespace:   fp.Namespace,
		URLHash:     fp.URLHash(),
		Fingerprint: fp.String(),
	}

	c.listenerMu.Lock()
	fns := make([]UpdateListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenerMu.Unlock()

	for _, fn := range fns {
		fn(update)
	}
}
