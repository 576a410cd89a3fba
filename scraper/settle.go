package scraper

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

// settle gives the page time to run deferred scripts, then scrolls to
// trigger lazily loaded content. It never fails the fetch.
func (s *Scraper) settle(p *rod.Page) {
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	if !sleepCtx(p, s.scraperCfg.SettleDelay) {
		return
	}
	if s.scraperCfg.ScrollSteps > 0 {
		if err := scroll(p, s.scraperCfg.ScrollSteps); err != nil {
			slog.Debug("scroll failed", "error", err)
		}
	}
}

// scroll moves down one viewport per step.
func scroll(p *rod.Page, steps int) error {
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return err
	}
	viewportHeight := res.Value.Int()
	for i := 0; i < steps; i++ {
		if err := p.Mouse.Scroll(0, float64(viewportHeight), 0); err != nil {
			return err
		}
		if !sleepCtx(p, 100*time.Millisecond) {
			return p.GetContext().Err()
		}
	}
	return nil
}

// sleepCtx waits for d unless the page context ends first.
func sleepCtx(p *rod.Page, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.GetContext().Done():
		return false
	}
}
