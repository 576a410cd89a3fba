package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"github.com/ysmood/gson"

	"github.com/use-agent/linkshield/engine"
	"github.com/use-agent/linkshield/models"
)

const (
	// iframeJS reports every iframe with its attribute size (falling back
	// to the rendered box) and computed visibility.
	iframeJS = `() => Array.from(document.querySelectorAll('iframe')).map(f => {
		const cs = window.getComputedStyle(f);
		const r = f.getBoundingClientRect();
		const w = f.getAttribute('width');
		const h = f.getAttribute('height');
		return {
			src: f.src || f.getAttribute('src') || '',
			width: w !== null && w !== '' ? w : r.width,
			height: h !== null && h !== '' ? h : r.height,
			display: cs.display,
			visibility: cs.visibility,
			opacity: cs.opacity,
			sandbox: f.hasAttribute('sandbox') ? f.getAttribute('sandbox') : null,
		};
	})`

	inlineScriptsJS = `() => Array.from(document.querySelectorAll('script:not([src])'))
		.map(s => s.textContent || '')
		.filter(t => t.trim() !== '')`

	statusJS = `() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`
)

// Fetch loads req.URL in a pooled tab and records everything the
// detectors look at. A returned error means the browser itself failed;
// failures of the target are reported in the page's Error field.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard          – hard deadline on the entire operation
//  2. Acquire page           – borrow a tab from the pool (or create one)
//  3. DEFER: cleanup         – about:blank + health check + return to pool
//  4. Stealth injection      – mask navigator.webdriver etc. (before navigation!)
//  5. Hijack mount           – record requests, block fonts/media, capture scripts
//  6. Console listener       – collect console API calls
//  7. Navigate               – retried on timeout
//  8. Settle                 – let scripts run and lazy content load
//  9. Extract                – status, final URL, HTML, iframes, inline scripts
//  10. Screenshot            – PNG for the visual detector
func (s *Scraper) Fetch(ctx context.Context, req *engine.FetchRequest) (*models.PageExecutionResult, error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	timeout := req.Timeout
	if timeout <= 0 || timeout > s.scraperCfg.DefaultTimeout {
		timeout = s.scraperCfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := &models.PageExecutionResult{
		URL:             req.URL,
		Redirects:       []string{},
		ConsoleMessages: []models.ConsoleMessage{},
		Iframes:         []models.Iframe{},
		NetworkRequests: []models.NetworkRequest{},
		Engine:          "rod",
	}

	// ── 2. Acquire page from pool ─────────────────────────────────────
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	page, acquireErr := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		s.pagePool.Put(nil)
		return nil, models.NewScanError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	// ── 3. CRITICAL DEFER: prevent DOM memory leak + guarantee pool return
	healthy := true
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
			healthy = false
		}
		s.release(page, healthy)
	}()

	// ── 4. Stealth injection ──────────────────────────────────────────
	if s.browserCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}
	setExtraHeaders(page, req)

	// ── 5. Mount hijack router ────────────────────────────────────────
	col := newCollector()
	router := setupHijack(page, s.scraperCfg.BlockedResourceTypes, col, s.scriptClient)
	defer func() { _ = router.Stop() }()

	// ── 6. Console listener ───────────────────────────────────────────
	// NOTE: Network domain events conflict with HijackRequests on
	// Chromium 145+; Runtime events are safe.
	evCtx, evCancel := context.WithCancel(ctx)
	defer evCancel()
	waitConsole := page.Context(evCtx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		col.addConsole(models.ConsoleMessage{
			Type:     string(e.Type),
			Text:     consoleText(e.Args),
			Location: consoleLocation(e.StackTrace),
		})
	})
	go waitConsole()

	p := page.Context(ctx)

	// ── 7. Navigate ───────────────────────────────────────────────────
	if navErr := s.navigate(ctx, page, req.URL, col); navErr != "" {
		result.Error = navErr
		result.FinalURL = req.URL
		result.LoadTimeMs = time.Since(start).Milliseconds()
		col.fill(result)
		healthy = ctx.Err() == nil
		return result, nil
	}

	// ── 8. Settle ─────────────────────────────────────────────────────
	s.settle(p)

	// ── 9. Extract ────────────────────────────────────────────────────
	if res, err := p.Eval(statusJS); err == nil {
		result.StatusCode = res.Value.Int()
	}
	result.FinalURL = evalStringOrEmpty(p, `() => window.location.href`)
	if result.FinalURL == "" || result.FinalURL == "about:blank" {
		result.FinalURL = req.URL
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		healthy = false
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}
	result.HTML = rawHTML
	result.Iframes = evalIframes(p)
	result.JSRaw = evalInlineScripts(p)

	// ── 10. Screenshot ────────────────────────────────────────────────
	if path, err := s.screenshot(p); err != nil {
		slog.Warn("screenshot failed", "url", req.URL, "error", err)
	} else {
		result.ScreenshotPath = path
	}

	result.LoadTimeMs = time.Since(start).Milliseconds()
	col.fill(result)
	return result, nil
}

// navigate loads rawURL, retrying when a single attempt times out. It
// returns the failure text for the page, or "" on success.
func (s *Scraper) navigate(ctx context.Context, page *rod.Page, rawURL string, col *collector) string {
	attempts := s.scraperCfg.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		navCtx, navCancel := context.WithTimeout(ctx, s.scraperCfg.NavigationTimeout)
		np := page.Context(navCtx)
		err := np.Navigate(rawURL)
		if err == nil {
			err = np.WaitLoad()
		}
		navCancel()
		if err == nil {
			return ""
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			slog.Debug("navigation failed", "url", rawURL, "error", err)
			return err.Error()
		}
		slog.Warn("navigation timeout", "url", rawURL, "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			return fmt.Sprintf("Timeout after %d attempts", attempt)
		}
		if attempt < attempts {
			col.reset()
		}
	}
	return fmt.Sprintf("Timeout after %d attempts", attempts)
}

// screenshot writes a PNG of the viewport into ScreenshotDir.
func (s *Scraper) screenshot(p *rod.Page) (string, error) {
	if s.scraperCfg.ScreenshotDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.scraperCfg.ScreenshotDir, 0o755); err != nil {
		return "", err
	}
	data, err := p.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.scraperCfg.ScreenshotDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func evalIframes(p *rod.Page) []models.Iframe {
	iframes := []models.Iframe{}
	res, err := p.Eval(iframeJS)
	if err != nil {
		slog.Debug("iframe extraction failed", "error", err)
		return iframes
	}
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &iframes); err != nil {
		slog.Debug("iframe decode failed", "error", err)
		return []models.Iframe{}
	}
	return iframes
}

func evalInlineScripts(p *rod.Page) []string {
	res, err := p.Eval(inlineScriptsJS)
	if err != nil {
		return nil
	}
	var out []string
	for _, v := range res.Value.Arr() {
		out = append(out, v.Str())
	}
	return out
}

// setExtraHeaders applies custom headers plus a search-engine Referer,
// which some cloaking kits require before serving their real content.
func setExtraHeaders(page *rod.Page, req *engine.FetchRequest) {
	extraHeaders := make(map[string]string, len(req.Headers)+1)
	if _, hasReferer := req.Headers["Referer"]; !hasReferer {
		if u, parseErr := url.Parse(req.URL); parseErr == nil {
			extraHeaders["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range req.Headers {
		extraHeaders[k] = v
	}
	if len(extraHeaders) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(extraHeaders),
		}.Call(page)
	}
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScanErrors so callers can
// tell timeouts from other browser failures.
func categorizeError(err error, msg string) *models.ScanError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScanError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScanError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScanError(models.ErrCodeNavigation, msg, err)
	}
}
