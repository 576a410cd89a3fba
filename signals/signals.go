// Package signals holds the heuristic detectors run against a page
// execution result. Detectors are pure: they read the page, never modify
// it, and never fail. Anything unexpected degrades to an empty finding.
package signals

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/use-agent/linkshield/models"
)

// Detector names, used as keys in PageExecutionResult.Signals.
const (
	NameRedirect   = "redirect"
	NameURLKeyword = "url_keyword"
	NameNetwork    = "network"
	NameIframe     = "iframe"
	NameJS         = "js"
	NameVisual     = "visual"
	NameForm       = "form"
)

// Detector inspects a page and reports a finding.
type Detector interface {
	Name() string
	Detect(ctx context.Context, page *models.PageExecutionResult) models.Finding
}

// Guard runs d and converts a panic into an empty finding carrying the
// failure in Meta["error"].
func Guard(ctx context.Context, d Detector, page *models.PageExecutionResult) (f models.Finding) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("detector failed", "detector", d.Name(), "panic", r)
			f = models.EmptyFinding(map[string]any{"error": fmt.Sprintf("detector failed: %v", r)})
		}
	}()
	f = d.Detect(ctx, page)
	if f.Reasons == nil {
		f.Reasons = []string{}
	}
	return f
}

// hostOf returns the lowercased host of raw without port, or "".
func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// domainMatches reports whether host is domain or one of its subdomains.
func domainMatches(host, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}
