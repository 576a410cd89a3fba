package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/models"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per caller identity.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
}

func (s *limiterSet) get(identity string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.limiters[identity]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[identity] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// evict drops identities not seen since cutoff.
func (s *limiterSet) evict(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, id)
		}
	}
}

// RateLimit returns per-identity (API key fingerprint or IP) token-bucket
// rate limiting middleware powered by golang.org/x/time/rate. Rejected
// requests get a Retry-After header. A non-positive rate disables it.
//
// Entries unused for 1 hour are evicted by a background goroutine that runs
// every 5 minutes, preventing unbounded memory growth.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	set := &limiterSet{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			set.evict(time.Now().Add(-1 * time.Hour))
		}
	}()

	return func(c *gin.Context) {
		identity := c.GetString(IdentityKey)
		if identity == "" {
			identity = "ip:" + c.ClientIP()
		}

		now := time.Now()
		reservation := set.get(identity, now).ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down")
			return
		}

		c.Next()
	}
}
