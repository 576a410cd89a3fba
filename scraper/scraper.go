package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/engine"
	"github.com/use-agent/linkshield/models"
)

// Scraper manages the global browser lifecycle and the page pool.
// It is safe for concurrent use.
type Scraper struct {
	browser      *rod.Browser
	pagePool     rod.Pool[rod.Page]
	browserCfg   config.BrowserConfig
	scraperCfg   config.ScraperConfig
	scriptClient *http.Client
	health       sync.Map // *rod.Page -> *pageHealth
	activePages  atomic.Int32
	retired      atomic.Int64
	startTime    time.Time
}

// NewScraper launches a headless browser and initialises the reusable page pool.
func NewScraper(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) (*Scraper, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScanError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScanError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(browserCfg.MaxPages)
	slog.Info("page pool created", "maxPages", browserCfg.MaxPages)

	return &Scraper{
		browser:      browser,
		pagePool:     pool,
		browserCfg:   browserCfg,
		scraperCfg:   scraperCfg,
		scriptClient: newScriptClient(browserCfg.DefaultProxy),
		startTime:    time.Now(),
	}, nil
}

// newScriptClient builds the client used to download script bodies on
// behalf of the browser, routed through the same proxy.
func newScriptClient(proxy string) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		if u, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Transport: transport, Timeout: 15 * time.Second}
}

// Run loads rawURL in the browser. Engine failures are folded into the
// returned page's Error so the scan still produces a verdict.
func (s *Scraper) Run(ctx context.Context, rawURL string) *models.PageExecutionResult {
	page, err := s.Fetch(ctx, &engine.FetchRequest{URL: rawURL})
	if err != nil {
		return &models.PageExecutionResult{
			URL:             rawURL,
			FinalURL:        rawURL,
			Error:           err.Error(),
			Redirects:       []string{},
			ConsoleMessages: []models.ConsoleMessage{},
			Iframes:         []models.Iframe{},
			NetworkRequests: []models.NetworkRequest{},
			Engine:          "rod",
		}
	}
	return page
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    s.browserCfg.MaxPages,
		ActivePages: int(s.activePages.Load()),
		Retired:     s.retired.Load(),
	}
}

// Uptime reports how long the browser has been running.
func (s *Scraper) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: draining page pool")
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("scraper shutting down: closing browser")
	s.browser.MustClose()
	slog.Info("scraper shutdown complete")
}

// release returns a tab to the pool, or closes it and frees its slot
// when its health says it should retire.
func (s *Scraper) release(page *rod.Page, ok bool) {
	h := s.healthOf(page)
	if ok {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}
	if !h.ShouldRetire() {
		s.pagePool.Put(page)
		return
	}
	s.health.Delete(page)
	s.retired.Add(1)
	slog.Info("retiring browser page", "target", page.TargetID)
	if err := page.Close(); err != nil {
		slog.Warn("failed to close retired page", "error", err)
	}
	s.pagePool.Put(nil)
}

func (s *Scraper) healthOf(page *rod.Page) *pageHealth {
	if v, ok := s.health.Load(page); ok {
		return v.(*pageHealth)
	}
	v, _ := s.health.LoadOrStore(page, newPageHealth(s.browserCfg.PageMaxFailures, s.browserCfg.PageMaxUses))
	return v.(*pageHealth)
}
