package signals

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/use-agent/linkshield/models"
)

// Preflight reasons.
const (
	ReasonSSLError    = "Error: SSL certificate error"
	ReasonDNSFailure  = "Error: Domain could not be resolved"
	reasonBadSchemeFm = "Error: Invalid URL scheme: %s"
)

var (
	sslMarkers = []string{
		"err_cert_", "err_ssl_", "ssl_error", "certificate", "x509:", "tls: ",
	}
	dnsMarkers = []string{
		"err_name_not_resolved", "err_name_resolution_failed", "no such host",
		"name or service not known", "getaddrinfo", "server misbehaving",
	}
)

// Network inspects the host and query of the final URL and of every
// captured request. Its reasons are informational; the aggregator
// records them without scoring.
type Network struct {
	SubdomainKeywords []string
	UntrustedTLDs     []string
	TrackingParams    []string
	TrackerDomains    []string
}

func (Network) Name() string { return NameNetwork }

func (d Network) Detect(_ context.Context, page *models.PageExecutionResult) models.Finding {
	reasons := d.check(page.EffectiveURL())

	flagged := 0
	trackers := map[string]int{}
	for _, req := range page.NetworkRequests {
		if len(d.check(req.URL)) > 0 {
			flagged++
		}
		host := hostOf(req.URL)
		for _, td := range d.TrackerDomains {
			if domainMatches(host, td) {
				trackers[td]++
				break
			}
		}
	}
	return models.NewFinding(reasons, map[string]any{
		"request_count":     len(page.NetworkRequests),
		"flagged_requests":  flagged,
		"tracker_requests":  trackers,
		"checked_final_url": page.EffectiveURL(),
	})
}

// check runs the subdomain, TLD and tracking-parameter checks on one URL.
func (d Network) check(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())

	var reasons []string
	labels := strings.Split(host, ".")
	var subs []string
	if len(labels) > 2 {
		subs = labels[:len(labels)-2]
	}
	for _, kw := range d.SubdomainKeywords {
		for _, sub := range subs {
			if strings.Contains(sub, kw) {
				reasons = append(reasons, fmt.Sprintf("Suspicious subdomain keyword: '%s'", kw))
				break
			}
		}
	}
	for _, tld := range d.UntrustedTLDs {
		if strings.HasSuffix(host, tld) {
			reasons = append(reasons, fmt.Sprintf("Untrusted TLD: '%s'", tld))
		}
	}
	q := u.Query()
	for _, p := range d.TrackingParams {
		if q.Has(p) {
			reasons = append(reasons, fmt.Sprintf("Tracking param detected: '%s'", p))
		}
	}
	return reasons
}

// Preflight returns the connection-level anomalies that force a malicious
// verdict: a non-http(s) scheme on the requested or final URL, and
// certificate or name-resolution failures reported by the fetch engine.
func Preflight(requestedURL string, page *models.PageExecutionResult) []string {
	var reasons []string
	checkScheme := func(raw string) {
		u, err := url.Parse(raw)
		if err != nil {
			return
		}
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			r := fmt.Sprintf(reasonBadSchemeFm, scheme)
			if !slices.Contains(reasons, r) {
				reasons = append(reasons, r)
			}
		}
	}
	checkScheme(requestedURL)
	if page == nil {
		return reasons
	}
	if page.FinalURL != "" {
		checkScheme(page.FinalURL)
	}
	if page.Error == "" {
		return reasons
	}
	msg := strings.ToLower(page.Error)
	if containsAny(msg, sslMarkers) {
		reasons = append(reasons, ReasonSSLError)
	}
	if containsAny(msg, dnsMarkers) {
		reasons = append(reasons, ReasonDNSFailure)
	}
	return reasons
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
