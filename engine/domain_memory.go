package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type domainEntry struct {
	engineName string
	expiresAt  time.Time
	wins       atomic.Int64
}

func (e *domainEntry) expired(now time.Time) bool { return now.After(e.expiresAt) }

// DomainMemory remembers which engine last loaded each domain cleanly,
// so repeat scans of the same site skip the escalation race.
// Entries expire after the configured TTL and are cleaned up periodically.
type DomainMemory struct {
	store sync.Map // domain (string) -> *domainEntry
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewDomainMemory creates a DomainMemory with the given TTL and starts
// a background goroutine that prunes expired entries every hour.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := &DomainMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go dm.cleanupLoop()
	return dm
}

// Get returns the remembered engine name for a domain, or "" if not found / expired.
func (dm *DomainMemory) Get(domain string) string {
	if dm == nil {
		return ""
	}
	val, ok := dm.store.Load(domain)
	if !ok {
		return ""
	}
	entry := val.(*domainEntry)
	if entry.expired(time.Now()) {
		dm.store.Delete(domain)
		return ""
	}
	return entry.engineName
}

// Set records which engine succeeded for a domain. A repeat win by the
// same engine extends the TTL and bumps its win count.
func (dm *DomainMemory) Set(domain, engineName string) {
	if dm == nil || domain == "" {
		return
	}
	entry := &domainEntry{
		engineName: engineName,
		expiresAt:  time.Now().Add(dm.ttl),
	}
	entry.wins.Store(1)
	if val, ok := dm.store.Load(domain); ok {
		if prev := val.(*domainEntry); prev.engineName == engineName {
			entry.wins.Store(prev.wins.Load() + 1)
		}
	}
	dm.store.Store(domain, entry)
}

// Wins returns how many times the remembered engine won for domain.
func (dm *DomainMemory) Wins(domain string) int64 {
	if dm == nil {
		return 0
	}
	val, ok := dm.store.Load(domain)
	if !ok {
		return 0
	}
	return val.(*domainEntry).wins.Load()
}

// Delete removes the memory for a domain (e.g. after the remembered engine fails).
func (dm *DomainMemory) Delete(domain string) {
	if dm == nil {
		return
	}
	dm.store.Delete(domain)
}

// Len counts live entries.
func (dm *DomainMemory) Len() int {
	if dm == nil {
		return 0
	}
	n := 0
	now := time.Now()
	dm.store.Range(func(_, value any) bool {
		if !value.(*domainEntry).expired(now) {
			n++
		}
		return true
	})
	return n
}

// Stop terminates the background cleanup goroutine. It is safe to call twice.
func (dm *DomainMemory) Stop() {
	if dm == nil {
		return
	}
	dm.once.Do(func() { close(dm.done) })
}

// prune drops entries that expired before now and reports how many.
func (dm *DomainMemory) prune(now time.Time) int {
	dropped := 0
	dm.store.Range(func(key, value any) bool {
		if value.(*domainEntry).expired(now) {
			dm.store.Delete(key)
			dropped++
		}
		return true
	})
	return dropped
}

func (dm *DomainMemory) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case now := <-ticker.C:
			if n := dm.prune(now); n > 0 {
				slog.Debug("domain memory pruned", "entries", n)
			}
		}
	}
}
