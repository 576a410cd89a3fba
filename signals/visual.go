package signals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/ocr"
)

// Visual reads text off the page screenshot and looks for phishing
// keywords. Every failure along the way yields an empty finding.
type Visual struct {
	OCR      ocr.Extractor
	Rules    ocr.ImageRules
	Timeout  time.Duration
	Keywords []string
}

func (Visual) Name() string { return NameVisual }

func (d Visual) Detect(ctx context.Context, page *models.PageExecutionResult) models.Finding {
	path := strings.TrimSpace(page.ScreenshotPath)
	if path == "" || d.OCR == nil {
		return models.EmptyFinding(map[string]any{"screenshot": false})
	}
	if err := ocr.ValidateImage(path, d.Rules); err != nil {
		slog.Warn("screenshot rejected", "path", path, "error", err)
		return models.EmptyFinding(map[string]any{"error": err.Error()})
	}
	text, err := d.OCR.ExtractText(ctx, path, d.Timeout)
	if err != nil {
		slog.Warn("ocr failed", "path", path, "error", err)
		return models.EmptyFinding(map[string]any{"error": err.Error()})
	}

	lower := strings.ToLower(text)
	var reasons []string
	found := []string{}
	for _, kw := range d.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			found = append(found, kw)
			reasons = append(reasons, fmt.Sprintf("Suspicious visual keyword: '%s'", kw))
		}
	}
	return models.NewFinding(reasons, map[string]any{"keywords_found": found, "text_length": len(text)})
}
