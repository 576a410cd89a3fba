package signals

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/linkshield/models"
)

// Form reasons.
const (
	ReasonFormInsecure = "Form submits via non-SSL (http) endpoint"
	ReasonFormPassword = "Form contains a password input field"
	reasonFormExternal = "Form submits to external domain: "
)

// Form flags HTML forms that post credentials insecurely or to another
// domain. Forms without an action submit to the page itself and are skipped.
type Form struct{}

func (Form) Name() string { return NameForm }

func (Form) Detect(_ context.Context, page *models.PageExecutionResult) models.Finding {
	base, err := url.Parse(page.EffectiveURL())
	if page.HTML == "" || err != nil || base.Host == "" {
		return models.EmptyFinding(nil)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return models.EmptyFinding(map[string]any{"error": err.Error()})
	}
	pageHost := strings.ToLower(base.Host)

	var reasons []string
	forms := doc.Find("form")
	forms.Each(func(_ int, s *goquery.Selection) {
		action := strings.TrimSpace(s.AttrOr("action", ""))
		if action == "" {
			return
		}
		target, err := base.Parse(action)
		if err != nil {
			return
		}
		if strings.EqualFold(target.Scheme, "http") {
			reasons = append(reasons, ReasonFormInsecure)
		}
		if host := strings.ToLower(target.Host); host != "" && host != pageHost {
			reasons = append(reasons, reasonFormExternal+host)
		}
		if hasPasswordInput(s) {
			reasons = append(reasons, ReasonFormPassword)
		}
	})
	return models.NewFinding(reasons, map[string]any{"form_count": forms.Length()})
}

func hasPasswordInput(form *goquery.Selection) bool {
	found := false
	form.Find("input[type]").EachWithBreak(func(_ int, in *goquery.Selection) bool {
		found = strings.EqualFold(strings.TrimSpace(in.AttrOr("type", "")), "password")
		return !found
	})
	return found
}
