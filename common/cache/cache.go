package cache

import (
	"context"
	"sync"
	"time"

	"github.com/auditflow/automation-engine/common/logger"
)

// Cache is the key-value store behind the completion cache. A zero TTL
// stores the entry without expiration.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryCache is the process-local fallback used when redis is skipped
// or unreachable. Cached completions then live only as long as the
// worker, so redelivered jobs replay for free only within one process.
type MemoryCache struct {
	data map[string]*cacheEntry
	mu   sync.RWMutex
	stop chan struct{}
	once sync.Once
	log  *logger.Logger
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

// NewMemoryCache creates an in-memory cache and starts its sweeper
func NewMemoryCache(log *logger.Logger) *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]*cacheEntry),
		stop: make(chan struct{}),
		log:  log,
	}

	go c.sweep()

	return c
}

// Get returns the value for key, reporting a miss for expired entries
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || entry.expired(time.Now()) {
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set stores a value. Zero or negative TTL stores it without expiration,
// matching the redis backend's semantics.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = entry
	return nil
}

// Delete removes a value
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// Close stops the sweeper and drops all entries
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*cacheEntry)
	c.log.Debug("memory cache closed")
	return nil
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// sweep drops expired entries once a minute until Close
func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.data {
				if entry.expired(now) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
