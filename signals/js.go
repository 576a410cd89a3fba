package signals

import (
	"context"
	"regexp"
	"slices"

	"github.com/use-agent/linkshield/models"
)

// ReasonSuspiciousJS is reported once when any entry matches.
const ReasonSuspiciousJS = "Suspicious JS behavior"

type jsPattern struct {
	label string
	re    *regexp.Regexp
}

// Ordered: the first matching pattern is the one recorded for an entry.
var jsPatterns = []jsPattern{
	{`eval\(`, regexp.MustCompile(`(?i)eval\(`)},
	{`new Function\(`, regexp.MustCompile(`(?i)new\s+function\s*\(`)},
	{`crypto\.subtle`, regexp.MustCompile(`(?i)crypto\.subtle`)},
	{`document\.write\(`, regexp.MustCompile(`(?i)document\.write\s*\(`)},
	{`atob\(`, regexp.MustCompile(`(?i)atob\s*\(`)},
	{`btoa\(`, regexp.MustCompile(`(?i)btoa\s*\(`)},
	{`fingerprint`, regexp.MustCompile(`(?i)fingerprint`)},
}

// JSBehavior matches console output, page HTML and script sources
// against known obfuscation and fingerprinting patterns.
type JSBehavior struct{}

func (JSBehavior) Name() string { return NameJS }

func (JSBehavior) Detect(_ context.Context, page *models.PageExecutionResult) models.Finding {
	matched := []string{}
	count := 0
	scan := func(text string) {
		if text == "" {
			return
		}
		for _, p := range jsPatterns {
			if p.re.MatchString(text) {
				count++
				if !slices.Contains(matched, p.label) {
					matched = append(matched, p.label)
				}
				return
			}
		}
	}

	for _, m := range page.ConsoleMessages {
		scan(m.Text)
	}
	scan(page.HTML)
	for _, src := range page.JSRaw {
		scan(src)
	}

	var reasons []string
	if count > 0 {
		reasons = append(reasons, ReasonSuspiciousJS)
	}
	return models.NewFinding(reasons, map[string]any{
		"match_count":      count,
		"matched_patterns": matched,
	})
}
