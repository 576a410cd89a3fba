package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/linkshield/models"
)

// Dispatcher coordinates multiple engines with staged escalation. Engine
// i starts once its escalation delay has elapsed or as soon as engine i-1
// has failed, whichever comes first. The first engine to produce a page
// wins and the others are cancelled.
type Dispatcher struct {
	engines          []Engine
	escalationDelays []time.Duration
	memory           *DomainMemory
	timeout          time.Duration
}

// NewDispatcher creates a Dispatcher with the given engines and escalation delays.
// engines[i] starts after escalationDelays[i] from the race beginning.
// The first delay should be 0 (immediate start).
func NewDispatcher(engines []Engine, escalationDelays []time.Duration, memory *DomainMemory) *Dispatcher {
	delays := make([]time.Duration, len(engines))
	copy(delays, escalationDelays)
	return &Dispatcher{
		engines:          engines,
		escalationDelays: delays,
		memory:           memory,
	}
}

// SetRequestTimeout sets the per-engine timeout used by Run.
func (d *Dispatcher) SetRequestTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// Engines returns the engine names in priority order.
func (d *Dispatcher) Engines() []string {
	names := make([]string, len(d.engines))
	for i, e := range d.engines {
		names[i] = e.Name()
	}
	return names
}

// Run loads rawURL and never fails: when no engine could run, the
// returned page carries the last engine error.
func (d *Dispatcher) Run(ctx context.Context, rawURL string) *models.PageExecutionResult {
	page, err := d.Dispatch(ctx, &FetchRequest{URL: rawURL, Timeout: d.timeout})
	if err != nil {
		slog.Warn("all engines failed", "url", rawURL, "error", err)
		return &models.PageExecutionResult{
			URL:             rawURL,
			FinalURL:        rawURL,
			Error:           err.Error(),
			Redirects:       []string{},
			ConsoleMessages: []models.ConsoleMessage{},
			Iframes:         []models.Iframe{},
			NetworkRequests: []models.NetworkRequest{},
		}
	}
	return page
}

// Dispatch runs the escalation race for the given request and returns
// the first page produced. If all engines fail, it returns the last error.
func (d *Dispatcher) Dispatch(ctx context.Context, req *FetchRequest) (*models.PageExecutionResult, error) {
	if len(d.engines) == 0 {
		return nil, fmt.Errorf("dispatcher: no engines configured")
	}
	domain := extractDomain(req.URL)

	// Check domain memory for a previously successful engine.
	if remembered := d.memory.Get(domain); remembered != "" {
		for _, eng := range d.engines {
			if eng.Name() == remembered {
				slog.Debug("domain memory hit", "domain", domain, "engine", remembered)
				page, err := eng.Fetch(ctx, req)
				if err == nil && page != nil {
					if page.Engine == "" {
						page.Engine = eng.Name()
					}
					return page, nil
				}
				slog.Info("domain memory miss (engine failed), running full race",
					"domain", domain, "engine", remembered, "error", err)
				d.memory.Delete(domain)
				break
			}
		}
	}

	return d.race(ctx, req, domain)
}

// race runs all engines with staged delays and returns the first success.
func (d *Dispatcher) race(ctx context.Context, req *FetchRequest, domain string) (*models.PageExecutionResult, error) {
	type raceResult struct {
		engine string
		page   *models.PageExecutionResult
		err    error
	}

	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	// failed[i] is closed when engine i returns an error.
	failed := make([]chan struct{}, len(d.engines))
	for i := range failed {
		failed[i] = make(chan struct{})
	}

	results := make(chan raceResult, len(d.engines))
	var wg sync.WaitGroup

	for i, eng := range d.engines {
		var prevFailed <-chan struct{}
		if i > 0 {
			prevFailed = failed[i-1]
		}
		wg.Add(1)
		go func(i int, e Engine, delay time.Duration) {
			defer wg.Done()

			if delay > 0 {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-raceCtx.Done():
					close(failed[i])
					return
				case <-timer.C:
				case <-prevFailed:
				}
			}

			// Check if another engine already won.
			select {
			case <-raceCtx.Done():
				close(failed[i])
				return
			default:
			}

			slog.Debug("engine starting", "engine", e.Name(), "url", req.URL)
			page, err := e.Fetch(raceCtx, req)
			if err != nil {
				slog.Debug("engine failed", "engine", e.Name(), "url", req.URL, "error", err)
				close(failed[i])
			}
			results <- raceResult{engine: e.Name(), page: page, err: err}
		}(i, eng, d.escalationDelays[i])
	}

	// Close results channel when all goroutines finish.
	go func() {
		wg.Wait()
		close(results)
	}()

	var lastErr error
	for rr := range results {
		if rr.err != nil {
			lastErr = rr.err
			continue
		}
		if rr.page == nil {
			lastErr = fmt.Errorf("%s: returned no page", rr.engine)
			continue
		}
		// First success wins; cancel the rest.
		raceCancel()
		slog.Info("engine won race", "engine", rr.engine, "url", req.URL)
		if rr.page.Error == "" {
			d.memory.Set(domain, rr.engine)
		}
		if rr.page.Engine == "" {
			rr.page.Engine = rr.engine
		}
		return rr.page, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("dispatcher: all engines failed for %s", req.URL)
	}
	return nil, lastErr
}

// extractDomain parses the lowercased hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
