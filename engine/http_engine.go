package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/linkshield/models"
)

const (
	maxBody         = 10 << 20
	maxScriptBody   = 512 << 10
	maxScriptFetch  = 10
	maxRedirectHops = 10
)

// HTTPEngine loads pages without a browser. It cannot run scripts, so
// console output and screenshots are never produced, but redirects,
// iframes and script sources are recovered from the raw response.
type HTTPEngine struct {
	transport *http.Transport
	timeout   time.Duration
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
// timeout bounds each fetch when the request carries none.
func NewHTTPEngine(timeout time.Duration) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return &HTTPEngine{transport: transport, timeout: timeout}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*models.PageExecutionResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	page := &models.PageExecutionResult{
		URL:             req.URL,
		Redirects:       []string{},
		ConsoleMessages: []models.ConsoleMessage{},
		Iframes:         []models.Iframe{},
		NetworkRequests: []models.NetworkRequest{},
		Engine:          e.Name(),
	}

	// Every hop that answered with a redirect is recorded.
	client := &http.Client{
		Transport: e.transport,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirectHops {
				return fmt.Errorf("stopped after %d redirects", maxRedirectHops)
			}
			page.Redirects = append(page.Redirects, via[len(via)-1].URL.String())
			page.NetworkRequests = append(page.NetworkRequests, models.NetworkRequest{
				URL: r.URL.String(), Method: r.Method, ResourceType: "document",
			})
			return nil
		},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("http_engine: build request: %w", err)
	}
	setBrowserHeaders(httpReq, req.Headers)
	page.NetworkRequests = append(page.NetworkRequests, models.NetworkRequest{
		URL: req.URL, Method: http.MethodGet, ResourceType: "document",
	})

	resp, err := client.Do(httpReq)
	if err != nil {
		page.Error = err.Error()
		page.FinalURL = req.URL
		page.LoadTimeMs = time.Since(start).Milliseconds()
		return page, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		page.Error = fmt.Sprintf("read body: %v", err)
	}
	page.StatusCode = resp.StatusCode
	page.FinalURL = resp.Request.URL.String()

	if isHTMLContentType(resp.Header.Get("Content-Type")) {
		page.HTML = string(body)
		art := extractArtifacts(page.HTML, page.FinalURL)
		if art.iframes != nil {
			page.Iframes = art.iframes
		}
		page.JSRaw = append(page.JSRaw, art.inlineJS...)
		page.NetworkRequests = append(page.NetworkRequests, art.requests...)
		page.JSRaw = append(page.JSRaw, e.fetchScripts(ctx, art.scriptSrc, req.Headers)...)
		slog.Debug("http engine fetched page", "url", page.FinalURL, "title", art.title,
			"iframes", len(art.iframes), "scripts", len(art.scriptSrc))
	}
	page.LoadTimeMs = time.Since(start).Milliseconds()
	return page, nil
}

// fetchScripts downloads external script bodies, best effort.
func (e *HTTPEngine) fetchScripts(ctx context.Context, srcs []string, headers map[string]string) []string {
	client := &http.Client{Transport: e.transport}
	var out []string
	for i, src := range srcs {
		if i >= maxScriptFetch || ctx.Err() != nil {
			break
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			continue
		}
		setBrowserHeaders(r, headers)
		resp, err := client.Do(r)
		if err != nil {
			slog.Debug("script fetch failed", "src", src, "error", err)
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptBody))
		resp.Body.Close()
		if err == nil && resp.StatusCode < 400 && len(body) > 0 {
			out = append(out, string(body))
		}
	}
	return out
}

func setBrowserHeaders(r *http.Request, extra map[string]string) {
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36")
	r.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set("Accept-Encoding", "identity")
	for k, v := range extra {
		r.Header.Set(k, v)
	}
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
