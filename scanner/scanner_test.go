package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/ocr"
	"github.com/use-agent/linkshield/target"
)

type stubExecutor struct {
	page  *models.PageExecutionResult
	calls int
	urls  []string
}

func (s *stubExecutor) Run(_ context.Context, u string) *models.PageExecutionResult {
	s.calls++
	s.urls = append(s.urls, u)
	if s.page == nil {
		return nil
	}
	return s.page.Clone()
}

type stubOCR struct{ text string }

func (s stubOCR) ExtractText(context.Context, string, time.Duration) (string, error) {
	return s.text, nil
}

func blankScreenshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blank.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatal(err)
	}
	return path
}

func newScanner(opts ...Option) *Scanner {
	return New(config.DefaultScannerConfig(), nil, opts...)
}

func strp(s string) *string { return &s }

func hiddenIframe() models.Iframe {
	return models.Iframe{
		Src:     "https://accounts.google.com/signin",
		Width:   models.Num(1000),
		Height:  models.Num(800),
		Opacity: models.Num(0),
	}
}

func evaluate(s *Scanner, page *models.PageExecutionResult) *models.ScanResult {
	return s.Evaluate(context.Background(), "https://legit-site.com", page)
}

func TestCleanPage(t *testing.T) {
	s := newScanner(WithOCR(stubOCR{}, ocr.DefaultImageRules(), time.Second))
	res := evaluate(s, &models.PageExecutionResult{
		URL:            "https://legit-site.com",
		FinalURL:       "https://legit-site.com",
		StatusCode:     200,
		ScreenshotPath: blankScreenshot(t),
	})
	if res.Status != models.StatusSafe || res.RiskScore != 0 || len(res.Reasons) != 0 {
		t.Errorf("got %s/%d %v, want safe/0 []", res.Status, res.RiskScore, res.Reasons)
	}
	if res.Reasons == nil {
		t.Error("reasons should encode as [] not null")
	}
}

func TestRedirectChain(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL:   "https://legit-site.com",
		StatusCode: 200,
		Redirects:  []string{"https://step1.com", "https://step2.com"},
	})
	if !slices.Contains(res.Reasons, ReasonRedirectChain) {
		t.Errorf("reasons %v missing %q", res.Reasons, ReasonRedirectChain)
	}
	if res.RiskScore < 30 {
		t.Errorf("score = %d, want >= 30", res.RiskScore)
	}
}

func TestSingleRedirectAddsReasonWithoutScore(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL:  "https://legit-site.com",
		Redirects: []string{"https://step1.com"},
	})
	if len(res.Reasons) != 1 || res.Reasons[0] != ReasonRedirectChain || res.RiskScore != 0 {
		t.Errorf("got %d %v", res.RiskScore, res.Reasons)
	}
}

func TestHiddenExternalIframe(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL: "https://legit-site.com",
		Iframes:  []models.Iframe{hiddenIframe()},
	})
	if res.RiskScore < 60 {
		t.Errorf("score = %d, want >= 60", res.RiskScore)
	}
	found := false
	for _, r := range res.Reasons {
		if strings.Contains(strings.ToLower(r), "iframe") {
			found = true
		}
	}
	if !found {
		t.Errorf("no iframe reason in %v", res.Reasons)
	}
}

func TestRedirectPlusIframe(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL:  "https://legit-site.com",
		Redirects: []string{"https://step1.com", "https://step2.com"},
		Iframes:   []models.Iframe{hiddenIframe()},
	})
	if res.Status != models.StatusSuspicious || res.RiskScore < 50 {
		t.Errorf("got %s/%d, want suspicious >= 50", res.Status, res.RiskScore)
	}
	if len(res.Reasons) < 2 {
		t.Errorf("want at least two reasons, got %v", res.Reasons)
	}
}

func TestHTTPErrorShortCircuits(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL:        "https://legit-site.com/missing",
		StatusCode:      404,
		ConsoleMessages: []models.ConsoleMessage{{Type: "error", Text: "eval(x)"}},
		Iframes:         []models.Iframe{hiddenIframe()},
	})
	if res.Status != models.StatusMalicious || res.RiskScore != 100 {
		t.Errorf("got %s/%d, want malicious/100", res.Status, res.RiskScore)
	}
	if len(res.Reasons) != 1 || res.Reasons[0] != "HTTP error code 404" {
		t.Errorf("reasons = %v", res.Reasons)
	}
}

func TestFetchErrorShortCircuits(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		Error:      "net::ERR_NAME_NOT_RESOLVED",
		StatusCode: 200,
		Redirects:  []string{"a", "b"},
	})
	if res.Status != models.StatusMalicious || res.RiskScore != 100 {
		t.Errorf("got %s/%d, want malicious/100", res.Status, res.RiskScore)
	}
	if len(res.Reasons) != 1 || res.Reasons[0] != "Fetch error: net::ERR_NAME_NOT_RESOLVED" {
		t.Errorf("reasons = %v", res.Reasons)
	}
	pre := res.Raw.Signals["network"].Meta["preflight"].([]string)
	if len(pre) != 1 || pre[0] != "Error: Domain could not be resolved" {
		t.Errorf("preflight meta = %v", pre)
	}
}

func TestSafeSandboxedIframeBaseline(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL: "https://legit-site.com",
		Iframes: []models.Iframe{{
			Src:     "https://www.youtube.com/embed/x",
			Width:   models.Num(300),
			Height:  models.Num(200),
			Sandbox: strp("allow-scripts"),
		}},
	})
	if res.Status != models.StatusSafe || res.RiskScore != 10 {
		t.Errorf("got %s/%d, want safe/10", res.Status, res.RiskScore)
	}
}

func TestBaselineIsAFloor(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL:        "https://legit-site.com",
		ConsoleMessages: []models.ConsoleMessage{{Type: "log", Text: "a"}},
		Iframes:         []models.Iframe{{Src: "https://example.org"}},
	})
	if res.RiskScore != 10 {
		t.Errorf("score = %d, want 10 (console weight, floor not added)", res.RiskScore)
	}
}

func TestPreflightInvalidScheme(t *testing.T) {
	s := newScanner()
	res := s.Evaluate(context.Background(), "ftp://legit-site.com", &models.PageExecutionResult{
		FinalURL:        "ftp://legit-site.com",
		ConsoleMessages: []models.ConsoleMessage{{Type: "log", Text: "hi"}},
	})
	if res.Status != models.StatusMalicious || res.RiskScore != 100 {
		t.Errorf("got %s/%d, want malicious/100", res.Status, res.RiskScore)
	}
	want := []string{"Error: Invalid URL scheme: ftp", ReasonConsole}
	if !slices.Equal(res.Reasons, want) {
		t.Errorf("reasons = %v, want %v", res.Reasons, want)
	}
}

func TestScoreClampedAndMalicious(t *testing.T) {
	s := newScanner(WithOCR(stubOCR{text: "Verify your PayPal login"}, ocr.DefaultImageRules(), time.Second))
	res := evaluate(s, &models.PageExecutionResult{
		FinalURL:        "https://secure-login.phish.tk",
		ConsoleMessages: []models.ConsoleMessage{{Type: "log", Text: "eval(atob(p))"}},
		Redirects:       []string{"a", "b", "c"},
		Iframes:         []models.Iframe{hiddenIframe()},
		ScreenshotPath:  blankScreenshot(t),
	})
	if res.RiskScore != 100 || res.Status != models.StatusMalicious {
		t.Errorf("got %s/%d, want malicious/100", res.Status, res.RiskScore)
	}
	for _, want := range []string{
		"Suspicious visual keyword: 'login'",
		"Suspicious keywords in URL",
		"Suspicious JS behavior",
	} {
		if !slices.Contains(res.Reasons, want) {
			t.Errorf("missing reason %q in %v", want, res.Reasons)
		}
	}
}

func TestReasonOrder(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL:        "https://login.example.com",
		ConsoleMessages: []models.ConsoleMessage{{Type: "log", Text: "x"}},
		Redirects:       []string{"a", "b"},
		JSRaw:           []string{"document.write('x')"},
	})
	want := []string{
		ReasonConsole,
		ReasonRedirectChain,
		"Multiple redirects detected",
		"Suspicious keywords in URL",
		"Suspicious JS behavior",
	}
	if !slices.Equal(res.Reasons, want) {
		t.Errorf("reasons = %v, want %v", res.Reasons, want)
	}
	// 10 + 0 + 30 + 30 + 25
	if res.RiskScore != 95 || res.Status != models.StatusMalicious {
		t.Errorf("got %s/%d, want malicious/95", res.Status, res.RiskScore)
	}
}

func TestNetworkFindingsDoNotScore(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL: "https://verify.example.ml/?gclid=1",
	})
	if res.RiskScore != 0 || len(res.Reasons) != 0 {
		t.Errorf("got %d %v, want 0 []", res.RiskScore, res.Reasons)
	}
	if !res.Raw.Signals["network"].Suspicious {
		t.Error("network finding should still be recorded")
	}
}

func TestFormSignalIsAuditOnlyByDefault(t *testing.T) {
	res := evaluate(newScanner(), &models.PageExecutionResult{
		FinalURL: "https://secure-bank.com/",
		HTML:     `<form action="/session"><input type="password"></form>`,
	})
	if res.Status != models.StatusSafe || res.RiskScore != 30 {
		t.Errorf("got %s/%d %v, want safe/30", res.Status, res.RiskScore, res.Reasons)
	}
	if !slices.Equal(res.Reasons, []string{"Suspicious keywords in URL"}) {
		t.Errorf("reasons = %q", res.Reasons)
	}
	if !res.Raw.Signals["form"].Suspicious {
		t.Error("form finding should still be recorded")
	}
}

func TestFormSignalScoresWhenWeighted(t *testing.T) {
	cfg := config.DefaultScannerConfig()
	cfg.Weights.Form = 20
	res := New(cfg, nil).Evaluate(context.Background(), "https://legit-site.com", &models.PageExecutionResult{
		FinalURL: "https://legit-site.com",
		HTML:     `<form action="http://collector.test/post"><input type="password"></form>`,
	})
	// insecure + external + password, 20 each
	if res.RiskScore != 60 || res.Status != models.StatusSuspicious {
		t.Errorf("got %s/%d, want suspicious/60", res.Status, res.RiskScore)
	}
}

func TestEvaluateDoesNotMutateInput(t *testing.T) {
	page := &models.PageExecutionResult{
		FinalURL:  "https://legit-site.com",
		Redirects: []string{"a", "b"},
		Iframes:   []models.Iframe{hiddenIframe()},
	}
	before, _ := json.Marshal(page)
	res := evaluate(newScanner(), page)
	after, _ := json.Marshal(page)
	if !bytes.Equal(before, after) {
		t.Error("input page was modified")
	}
	if page.Signals != nil {
		t.Error("signals attached to caller's page")
	}
	if res.Raw == page || len(res.Raw.Signals) == 0 {
		t.Error("result should carry an annotated copy")
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	page := &models.PageExecutionResult{
		FinalURL:        "https://secure.example.com",
		ConsoleMessages: []models.ConsoleMessage{{Type: "warn", Text: "fingerprint"}},
		Redirects:       []string{"a", "b"},
		Iframes:         []models.Iframe{hiddenIframe(), {Src: "https://example.org"}},
		NetworkRequests: []models.NetworkRequest{{URL: "https://ad.doubleclick.net/x"}},
	}
	s := newScanner()
	a, _ := json.Marshal(evaluate(s, page))
	b, _ := json.Marshal(evaluate(s, page))
	if !bytes.Equal(a, b) {
		t.Errorf("results differ:\n%s\n%s", a, b)
	}
}

func TestMonotonicity(t *testing.T) {
	base := &models.PageExecutionResult{FinalURL: "https://legit-site.com"}
	s := newScanner()
	prev := evaluate(s, base).RiskScore
	steps := []func(p *models.PageExecutionResult){
		func(p *models.PageExecutionResult) { p.ConsoleMessages = []models.ConsoleMessage{{Text: "x"}} },
		func(p *models.PageExecutionResult) { p.Redirects = []string{"a", "b"} },
		func(p *models.PageExecutionResult) { p.JSRaw = []string{"atob('x')"} },
		func(p *models.PageExecutionResult) { p.Iframes = []models.Iframe{hiddenIframe()} },
	}
	for i, step := range steps {
		step(base)
		got := evaluate(s, base).RiskScore
		if got < prev {
			t.Fatalf("step %d: score decreased from %d to %d", i, prev, got)
		}
		prev = got
	}
}

func TestScoreBounds(t *testing.T) {
	pages := []*models.PageExecutionResult{
		{},
		{Error: "boom"},
		{StatusCode: 503},
		{FinalURL: "::bad::", Iframes: []models.Iframe{{}, {}, {}}},
	}
	s := newScanner()
	for i, p := range pages {
		res := evaluate(s, p)
		if res.RiskScore < 0 || res.RiskScore > 100 || !res.Status.Valid() {
			t.Errorf("page %d: out of bounds %s/%d", i, res.Status, res.RiskScore)
		}
	}
}

func TestNilPage(t *testing.T) {
	res := evaluate(newScanner(), nil)
	if res.Status != models.StatusMalicious || res.RiskScore != 100 {
		t.Errorf("got %s/%d", res.Status, res.RiskScore)
	}
}

func TestScanValidatesBeforeFetch(t *testing.T) {
	exec := &stubExecutor{page: &models.PageExecutionResult{}}
	s := New(config.DefaultScannerConfig(), exec)

	_, err := s.Scan(context.Background(), "http://127.0.0.1/admin")
	if !errors.Is(err, target.ErrBlockedTarget) {
		t.Fatalf("err = %v, want ErrBlockedTarget", err)
	}
	_, err = s.Scan(context.Background(), "https://")
	if !errors.Is(err, target.ErrInvalidURL) {
		t.Fatalf("err = %v, want ErrInvalidURL", err)
	}
	if exec.calls != 0 {
		t.Errorf("executor called %d times for rejected input", exec.calls)
	}
}

func TestScanNormalizesAndFetches(t *testing.T) {
	exec := &stubExecutor{page: &models.PageExecutionResult{
		URL:        "https://legit-site.com",
		FinalURL:   "https://legit-site.com/home",
		StatusCode: 200,
	}}
	s := New(config.DefaultScannerConfig(), exec)
	res, err := s.Scan(context.Background(), "legit-site.com")
	if err != nil {
		t.Fatal(err)
	}
	if exec.urls[0] != "https://legit-site.com" {
		t.Errorf("fetched %q", exec.urls[0])
	}
	if res.URL != "https://legit-site.com" || res.FinalURL != "https://legit-site.com/home" {
		t.Errorf("urls = %q %q", res.URL, res.FinalURL)
	}
	if res.Status != models.StatusSafe {
		t.Errorf("status = %s", res.Status)
	}
}

func TestScanNilExecutorResult(t *testing.T) {
	s := New(config.DefaultScannerConfig(), &stubExecutor{})
	res, err := s.Scan(context.Background(), "https://legit-site.com")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusMalicious || !strings.HasPrefix(res.Reasons[0], "Fetch error:") {
		t.Errorf("got %s %v", res.Status, res.Reasons)
	}
}

type panicExecutor struct{}

func (panicExecutor) Run(context.Context, string) *models.PageExecutionResult { panic("crash") }

func TestScanExecutorPanic(t *testing.T) {
	s := New(config.DefaultScannerConfig(), panicExecutor{})
	res, err := s.Scan(context.Background(), "https://legit-site.com")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusMalicious || res.Reasons[0] != "Fetch error: executor failed: crash" {
		t.Errorf("got %s %v", res.Status, res.Reasons)
	}
}

func TestDuplicateReasonAcrossDetectors(t *testing.T) {
	ev := newEvaluation(config.DefaultScannerConfig(), "https://legit-site.com", &models.PageExecutionResult{})
	first := models.NewFinding([]string{"Suspicious keywords in URL", "Suspicious JS behavior"}, nil)
	second := models.NewFinding([]string{"Suspicious JS behavior"}, nil)

	ev.merge(first, 30)
	ev.merge(second, 25)

	if ev.score != 60 {
		t.Errorf("score = %d, want 60 (duplicate must not add weight)", ev.score)
	}
	want := []string{"Suspicious keywords in URL", "Suspicious JS behavior"}
	if !slices.Equal(ev.reasons, want) {
		t.Errorf("reasons = %q, want %q", ev.reasons, want)
	}
}
