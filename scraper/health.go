package scraper

import (
	"math"
	"sync"
	"time"
)

// maxPageAge retires a tab regardless of health so long-lived renderer
// processes do not accumulate leaked state.
const maxPageAge = 50 * time.Minute

// pageHealth tracks how well a pooled tab has behaved.
//
// Scoring rules:
//   - Success: errScore -= 0.5 (min 0)
//   - Failure: errScore += 1.0
//
// Retirement triggers (any one):
//   - errScore >= maxFailures
//   - useCount >= maxUses
//   - age >= maxPageAge
type pageHealth struct {
	errScore    float64
	useCount    int
	created     time.Time
	maxFailures float64
	maxUses     int
	mu          sync.Mutex
}

func newPageHealth(maxFailures, maxUses int) *pageHealth {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if maxUses <= 0 {
		maxUses = 50
	}
	return &pageHealth{
		created:     time.Now(),
		maxFailures: float64(maxFailures),
		maxUses:     maxUses,
	}
}

// RecordSuccess decreases the error score (min 0).
func (h *pageHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score.
func (h *pageHealth) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire returns true if the tab should be closed instead of reused.
func (h *pageHealth) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= h.maxFailures ||
		h.useCount >= h.maxUses ||
		time.Since(h.created) >= maxPageAge
}
