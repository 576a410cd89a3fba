package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/scanner"
)

func init() {
	color.NoColor = true
}

func TestReadURLs(t *testing.T) {
	input := `
# phishing candidates
https://example.com
   example.org/login   

#https://skipped.example
http://test.example
`
	got, err := readURLs(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://example.com", "example.org/login", "http://test.example"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("readURLs() = %q, want %q", got, want)
	}
}

type pageExecutor map[string]*models.PageExecutionResult

func (p pageExecutor) Run(_ context.Context, u string) *models.PageExecutionResult {
	if page, ok := p[u]; ok {
		return page
	}
	return &models.PageExecutionResult{URL: u, FinalURL: u, StatusCode: 200}
}

func TestRunBatch(t *testing.T) {
	exec := pageExecutor{
		"https://down.example": {URL: "https://down.example", FinalURL: "https://down.example", StatusCode: 503},
	}
	sc := scanner.New(config.DefaultScannerConfig(), exec)
	urls := []string{"https://example.com", "https://down.example", "http://localhost", "https://example.org"}

	var calls int
	report := runBatch(context.Background(), sc, urls, 3, func(done int, _ *models.BatchItem) {
		calls++
	})

	if calls != len(urls) {
		t.Errorf("progress calls = %d, want %d", calls, len(urls))
	}
	if len(report.Tests) != len(urls) {
		t.Fatalf("tests = %d, want %d", len(report.Tests), len(urls))
	}
	for i, item := range report.Tests {
		if item.URL != urls[i] {
			t.Errorf("tests[%d].URL = %q, want %q (order must be kept)", i, item.URL, urls[i])
		}
	}
	if report.Tests[2].Error == nil || report.Tests[2].Error.Code != models.ErrCodeBlockedTarget {
		t.Errorf("localhost item error = %+v, want BLOCKED_TARGET", report.Tests[2].Error)
	}
	want := models.BatchSummary{Safe: 2, Malicious: 1, Errors: 1}
	if report.Summary != want {
		t.Errorf("summary = %+v, want %+v", report.Summary, want)
	}
}

func TestEvaluateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.json")
	page := `{
		"url": "https://example.com",
		"final_url": "https://example.com/verify-account",
		"status_code": 200,
		"redirects": [],
		"console_messages": [],
		"iframes": [{"src": "https://accounts.google.com/x", "width": "0", "height": 0, "display": "none", "visibility": "visible", "opacity": "1", "sandbox": null}],
		"network_requests": []
	}`
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Scanner: config.DefaultScannerConfig()}
	res, err := evaluateFile(context.Background(), cfg, path, "")
	if err != nil {
		t.Fatalf("evaluateFile: %v", err)
	}
	if res.URL != "https://example.com" {
		t.Errorf("URL = %q", res.URL)
	}
	if res.Status != models.StatusSuspicious || res.RiskScore != 60 {
		t.Errorf("hidden watch-listed iframe: got %s/%d %q, want suspicious/60", res.Status, res.RiskScore, res.Reasons)
	}
	want := "[#1] Tiny hidden tracker iframe at 'https://accounts.google.com/x' without sandbox"
	if len(res.Reasons) != 1 || res.Reasons[0] != want {
		t.Errorf("reasons = %q, want [%q]", res.Reasons, want)
	}
}

func TestEvaluateFileErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Scanner: config.DefaultScannerConfig()}

	if _, err := evaluateFile(context.Background(), cfg, filepath.Join(dir, "missing.json"), ""); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0o644)
	if _, err := evaluateFile(context.Background(), cfg, bad, ""); err == nil {
		t.Error("expected error for malformed JSON")
	}

	nourl := filepath.Join(dir, "nourl.json")
	os.WriteFile(nourl, []byte(`{"status_code":200}`), 0o644)
	if _, err := evaluateFile(context.Background(), cfg, nourl, ""); err == nil {
		t.Error("expected error when no URL is known")
	}
}

func TestPrintVerdict(t *testing.T) {
	var buf bytes.Buffer
	printVerdict(&buf, &models.ScanResult{
		URL:       "https://a.example",
		FinalURL:  "https://b.example",
		Status:    models.StatusSuspicious,
		RiskScore: 60,
		Reasons:   []string{"Redirect chain detected"},
	})
	out := buf.String()
	for _, want := range []string{"SUSPICIOUS", "score=60", "final: https://b.example", "- Redirect chain detected"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
