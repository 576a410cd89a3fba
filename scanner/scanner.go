// Package scanner runs the detector battery over a fetched page and
// merges the findings into one verdict.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/ocr"
	"github.com/use-agent/linkshield/signals"
	"github.com/use-agent/linkshield/target"
)

// Fixed reasons added by the aggregator itself.
const (
	ReasonConsole       = "Detected console messages"
	ReasonRedirectChain = "Redirect chain detected"
)

// Executor loads a URL and reports what happened. Target failures are
// carried in PageExecutionResult.Error, never returned.
type Executor interface {
	Run(ctx context.Context, url string) *models.PageExecutionResult
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithOCR enables the visual detector.
func WithOCR(ext ocr.Extractor, rules ocr.ImageRules, timeout time.Duration) Option {
	return func(s *Scanner) {
		s.visual.OCR = ext
		s.visual.Rules = rules
		s.visual.Timeout = timeout
	}
}

// Scanner is safe for concurrent use: every scan allocates its own state
// and the configuration is copied at construction.
type Scanner struct {
	cfg  config.ScannerConfig
	exec Executor

	redirect   signals.Redirect
	urlKeyword signals.URLKeyword
	network    signals.Network
	visual     signals.Visual
	iframe     signals.Iframe
	js         signals.JSBehavior
	form       signals.Form
}

// New creates a Scanner. exec may be nil when only Evaluate is used.
func New(cfg config.ScannerConfig, exec Executor, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:        cfg,
		exec:       exec,
		redirect:   signals.Redirect{Threshold: cfg.RedirectThreshold},
		urlKeyword: signals.URLKeyword{Keywords: cfg.URLKeywords},
		network: signals.Network{
			SubdomainKeywords: cfg.SubdomainKeywords,
			UntrustedTLDs:     cfg.UntrustedTLDs,
			TrackingParams:    cfg.TrackingParams,
			TrackerDomains:    cfg.TrackerDomains,
		},
		visual: signals.Visual{
			OCR:      ocr.Disabled{},
			Rules:    ocr.DefaultImageRules(),
			Timeout:  10 * time.Second,
			Keywords: cfg.OCRKeywords,
		},
		iframe: signals.Iframe{
			WatchList:   cfg.IframeWatchList,
			LargeWidth:  cfg.IframeLargeWidth,
			LargeHeight: cfg.IframeLargeHeight,
			TrackerSize: cfg.IframeTrackerSize,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the scoring configuration in use.
func (s *Scanner) Config() config.ScannerConfig { return s.cfg }

// Scan normalizes and validates rawURL, fetches it and evaluates the
// page. The only errors are validation errors.
func (s *Scanner) Scan(ctx context.Context, rawURL string) (*models.ScanResult, error) {
	res, _, err := s.ScanTimed(ctx, rawURL)
	return res, err
}

// ScanTimed is Scan with a fetch/score duration breakdown.
func (s *Scanner) ScanTimed(ctx context.Context, rawURL string) (*models.ScanResult, models.TimingInfo, error) {
	var timing models.TimingInfo
	start := time.Now()

	normalized := target.Normalize(rawURL)
	if err := target.Validate(normalized); err != nil {
		return nil, timing, err
	}
	if s.exec == nil {
		return nil, timing, models.NewScanError(models.ErrCodeInternal, "scanner has no executor", nil)
	}

	page := s.fetch(ctx, normalized)
	timing.FetchMs = time.Since(start).Milliseconds()

	scoreStart := time.Now()
	res := s.Evaluate(ctx, normalized, page)
	timing.ScoreMs = time.Since(scoreStart).Milliseconds()
	timing.TotalMs = time.Since(start).Milliseconds()

	slog.Info("scan complete",
		"url", normalized,
		"status", res.Status,
		"score", res.RiskScore,
		"reasons", len(res.Reasons),
		"fetch_ms", timing.FetchMs,
	)
	return res, timing, nil
}

// fetch runs the executor, converting a panic into a fetch error.
func (s *Scanner) fetch(ctx context.Context, u string) (page *models.PageExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("executor panicked", "url", u, "panic", r)
			page = &models.PageExecutionResult{URL: u, Error: fmt.Sprintf("executor failed: %v", r)}
		}
	}()
	page = s.exec.Run(ctx, u)
	if page == nil {
		page = &models.PageExecutionResult{URL: u, Error: "executor returned no result"}
	}
	return page
}

// Evaluate scores an already fetched page. It never fails: anything
// unexpected becomes a malicious verdict with an "Unhandled error" reason.
// The page is not modified.
func (s *Scanner) Evaluate(ctx context.Context, requestedURL string, page *models.PageExecutionResult) (res *models.ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("evaluation failed", "url", requestedURL, "panic", r)
			res = &models.ScanResult{
				URL:       requestedURL,
				FinalURL:  requestedURL,
				Status:    models.StatusMalicious,
				RiskScore: s.maxScore(),
				Reasons:   []string{fmt.Sprintf("Unhandled error: %v", r)},
			}
		}
	}()

	if page == nil {
		page = &models.PageExecutionResult{URL: requestedURL, Error: "executor returned no result"}
	}
	ev := newEvaluation(s.cfg, requestedURL, page)
	s.run(ctx, ev)
	return ev.result()
}

func (s *Scanner) run(ctx context.Context, ev *evaluation) {
	page := ev.raw

	// Hard failures: nothing else is evaluated.
	if page.Error != "" {
		if pre := signals.Preflight(ev.requested, page); len(pre) > 0 {
			ev.record(signals.NameNetwork, models.EmptyFinding(map[string]any{"preflight": pre}))
		}
		ev.fail("Fetch error: " + page.Error)
		return
	}
	if page.StatusCode >= 400 {
		ev.fail(fmt.Sprintf("HTTP error code %d", page.StatusCode))
		return
	}

	if pre := signals.Preflight(ev.requested, page); len(pre) > 0 {
		for _, r := range pre {
			ev.add(r, 0)
		}
		ev.force()
	}

	if len(page.ConsoleMessages) > 0 {
		ev.add(ReasonConsole, s.cfg.Weights.Console)
	}

	if len(page.Redirects) > 0 && !ev.hasReasonContaining("redirect") {
		ev.add(ReasonRedirectChain, 0)
	}
	ev.merge(s.detect(ctx, ev, s.redirect), s.cfg.Weights.Redirect)

	// Informational only.
	s.detect(ctx, ev, s.network)

	ev.merge(s.detect(ctx, ev, s.urlKeyword), s.cfg.Weights.URLKeyword)
	ev.merge(s.detect(ctx, ev, s.visual), s.cfg.Weights.OCR)

	iframes := s.detect(ctx, ev, s.iframe)
	if len(iframes.Reasons) > 0 {
		ev.merge(iframes, s.cfg.Weights.Iframe)
	} else if len(page.Iframes) > 0 {
		ev.floor(s.cfg.IframeBaseline)
	}

	ev.merge(s.detect(ctx, ev, s.js), s.cfg.Weights.JS)
	// Forms are recorded for audit and only score when a weight is set.
	forms := s.detect(ctx, ev, s.form)
	if s.cfg.Weights.Form > 0 {
		ev.merge(forms, s.cfg.Weights.Form)
	}
}

// detect runs d in isolation against the original page and records the
// finding under its name.
func (s *Scanner) detect(ctx context.Context, ev *evaluation, d signals.Detector) models.Finding {
	f := signals.Guard(ctx, d, ev.page)
	ev.record(d.Name(), f)
	return f
}

func (s *Scanner) maxScore() int {
	if s.cfg.MaxScore > 0 {
		return s.cfg.MaxScore
	}
	return 100
}

// evaluation is the mutable state of one scan.
type evaluation struct {
	cfg       config.ScannerConfig
	requested string
	page      *models.PageExecutionResult // caller's copy, read-only
	raw       *models.PageExecutionResult // annotated copy returned in the result

	score   int
	reasons []string
	seen    map[string]struct{}
	forced  bool // status pinned to malicious
}

func newEvaluation(cfg config.ScannerConfig, requested string, page *models.PageExecutionResult) *evaluation {
	raw := page.Clone()
	raw.Signals = map[string]models.Finding{}
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = 100
	}
	return &evaluation{
		cfg:       cfg,
		requested: requested,
		page:      page,
		raw:       raw,
		reasons:   []string{},
		seen:      map[string]struct{}{},
	}
}

// add appends reason and its weight unless the reason is already present.
func (e *evaluation) add(reason string, weight int) {
	if _, ok := e.seen[reason]; ok {
		return
	}
	e.seen[reason] = struct{}{}
	e.reasons = append(e.reasons, reason)
	e.score = e.clamp(e.score + weight)
}

func (e *evaluation) merge(f models.Finding, weight int) {
	for _, r := range f.Reasons {
		e.add(r, weight)
	}
}

func (e *evaluation) floor(base int) {
	if e.score < base {
		e.score = e.clamp(base)
	}
}

func (e *evaluation) force() {
	e.forced = true
	e.score = e.cfg.MaxScore
}

func (e *evaluation) fail(reason string) {
	e.add(reason, 0)
	e.force()
}

func (e *evaluation) record(name string, f models.Finding) {
	e.raw.Signals[name] = f.Clone()
}

func (e *evaluation) hasReasonContaining(sub string) bool {
	for _, r := range e.reasons {
		if strings.Contains(strings.ToLower(r), sub) {
			return true
		}
	}
	return false
}

func (e *evaluation) clamp(v int) int {
	return max(0, min(v, e.cfg.MaxScore))
}

func (e *evaluation) status() models.Status {
	switch {
	case e.forced || e.score >= e.cfg.MaliciousThreshold:
		return models.StatusMalicious
	case e.score >= e.cfg.SuspiciousThreshold:
		return models.StatusSuspicious
	default:
		return models.StatusSafe
	}
}

func (e *evaluation) result() *models.ScanResult {
	final := e.page.FinalURL
	if final == "" {
		final = e.requested
	}
	if len(e.raw.Signals) == 0 {
		e.raw.Signals = nil
	}
	return &models.ScanResult{
		URL:       e.requested,
		FinalURL:  final,
		Status:    e.status(),
		RiskScore: e.score,
		Reasons:   e.reasons,
		Raw:       e.raw,
	}
}
