package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/linkshield/models"
)

// sweepInterval is how often expired verdicts are dropped.
const sweepInterval = time.Hour

// entry holds a cached verdict with its creation timestamp.
type entry struct {
	result    *models.ScanResult
	createdAt time.Time
}

// Cache is an in-memory store of scan verdicts keyed by normalized URL.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	done       chan struct{}
	once       sync.Once
}

// New creates a Cache holding at most maxEntries verdicts. Entries older
// than ttl are swept every hour; ttl <= 0 keeps them until evicted.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		done:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key generates a cache key from a normalized URL.
func Key(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

// Get retrieves a cached verdict if it exists and is younger than maxAge.
// If maxAge <= 0, no cache lookup is performed.
func (c *Cache) Get(key string, maxAge time.Duration) (*models.ScanResult, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || time.Since(e.createdAt) > maxAge {
		return nil, false
	}
	return e.result, true
}

// Set stores a verdict. At capacity the oldest entry is evicted.
func (c *Cache) Set(key string, result *models.ScanResult) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{
		result:    result,
		createdAt: time.Now(),
	}
}

// Len returns the number of cached verdicts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop terminates the sweep goroutine.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.done) })
}

// sweep drops entries created before cutoff.
func (c *Cache) sweep(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.ttl > 0 {
				c.sweep(time.Now().Add(-c.ttl))
			}
		}
	}
}
