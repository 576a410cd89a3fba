package signals

import (
	"context"

	"github.com/use-agent/linkshield/models"
)

// ReasonMultipleRedirects is reported when the chain reaches the threshold.
const ReasonMultipleRedirects = "Multiple redirects detected"

// Redirect flags long redirect chains.
type Redirect struct {
	Threshold int
}

func (Redirect) Name() string { return NameRedirect }

func (d Redirect) Detect(_ context.Context, page *models.PageExecutionResult) models.Finding {
	count := len(page.Redirects)
	var reasons []string
	if d.Threshold > 0 && count >= d.Threshold {
		reasons = append(reasons, ReasonMultipleRedirects)
	}
	return models.NewFinding(reasons, map[string]any{"count": count, "threshold": d.Threshold})
}
