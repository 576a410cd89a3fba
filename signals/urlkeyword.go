package signals

import (
	"context"
	"strings"

	"github.com/use-agent/linkshield/models"
)

// ReasonURLKeywords is reported when the domain contains a watched keyword.
const ReasonURLKeywords = "Suspicious keywords in URL"

// URLKeyword looks for phishing keywords in the domain of the final URL.
// Path and query are ignored.
type URLKeyword struct {
	Keywords []string
}

func (URLKeyword) Name() string { return NameURLKeyword }

func (d URLKeyword) Detect(_ context.Context, page *models.PageExecutionResult) models.Finding {
	domain := hostOf(page.EffectiveURL())
	found := []string{}
	for _, kw := range d.Keywords {
		if kw != "" && strings.Contains(domain, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	var reasons []string
	if len(found) > 0 {
		reasons = append(reasons, ReasonURLKeywords)
	}
	return models.NewFinding(reasons, map[string]any{"found": found, "domain": domain})
}
