package signals

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/use-agent/linkshield/models"
)

// Iframe flags hidden iframes that embed a commonly impersonated domain.
type Iframe struct {
	WatchList   []string
	LargeWidth  float64
	LargeHeight float64
	TrackerSize float64
}

func (Iframe) Name() string { return NameIframe }

func (d Iframe) Detect(_ context.Context, page *models.PageExecutionResult) models.Finding {
	var reasons []string
	for i, f := range page.Iframes {
		if r := d.classify(i+1, f); r != "" {
			slog.Debug("suspicious iframe", "reason", r)
			reasons = append(reasons, r)
		}
	}
	return models.NewFinding(reasons, map[string]any{"iframe_count": len(page.Iframes)})
}

// classify returns the reason for one iframe, or "".
func (d Iframe) classify(idx int, f models.Iframe) string {
	width := f.Width.Or(0)
	height := f.Height.Or(0)
	opacity := f.Opacity.Or(1)
	display := strings.ToLower(strings.TrimSpace(f.Display))
	visibility := strings.ToLower(strings.TrimSpace(f.Visibility))
	src := strings.TrimSpace(f.Src)

	hidden := opacity < 0.1 || display == "none" || visibility == "hidden"
	if !hidden || !d.external(src) {
		return ""
	}
	large := width >= d.LargeWidth && height >= d.LargeHeight
	tracker := width <= d.TrackerSize && height <= d.TrackerSize
	noSandbox := f.Sandbox == nil

	switch {
	case large:
		return fmt.Sprintf("[#%d] Hidden large iframe from '%s' (%s×%s, opacity=%s)",
			idx, src, num(width), num(height), num(opacity))
	case tracker && noSandbox:
		return fmt.Sprintf("[#%d] Tiny hidden tracker iframe at '%s' without sandbox", idx, src)
	case noSandbox:
		return fmt.Sprintf("[#%d] External iframe from '%s' missing sandbox attribute", idx, src)
	}
	return ""
}

func (d Iframe) external(src string) bool {
	host := hostOf(src)
	if host == "" {
		return false
	}
	for _, domain := range d.WatchList {
		if domainMatches(host, domain) {
			return true
		}
	}
	return false
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
