package scraper

import (
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/linkshield/models"
)

const (
	maxScriptCapture = 512 << 10
	maxScriptsTotal  = 4 << 20
)

// collector accumulates page artifacts from the hijack router and the
// console listener, which run on their own goroutines.
type collector struct {
	mu          sync.Mutex
	console     []models.ConsoleMessage
	requests    []models.NetworkRequest
	documents   []string
	scripts     []string
	scriptBytes int
}

func newCollector() *collector {
	return &collector{
		console:  []models.ConsoleMessage{},
		requests: []models.NetworkRequest{},
	}
}

func (c *collector) addRequest(r models.NetworkRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, r)
}

// addDocument records a navigation hop of any frame.
func (c *collector) addDocument(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.documents); n > 0 && c.documents[n-1] == u {
		return
	}
	c.documents = append(c.documents, u)
}

func (c *collector) addScript(body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	if len(body) > maxScriptCapture {
		body = body[:maxScriptCapture]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scriptBytes+len(body) > maxScriptsTotal {
		return
	}
	c.scriptBytes += len(body)
	c.scripts = append(c.scripts, body)
}

func (c *collector) addConsole(m models.ConsoleMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, m)
}

// reset drops everything gathered by a failed attempt.
func (c *collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = []models.ConsoleMessage{}
	c.requests = []models.NetworkRequest{}
	c.documents = nil
	c.scripts = nil
	c.scriptBytes = 0
}

// fill copies the collected artifacts into page.
func (c *collector) fill(page *models.PageExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page.ConsoleMessages = append([]models.ConsoleMessage{}, c.console...)
	page.NetworkRequests = append([]models.NetworkRequest{}, c.requests...)
	page.JSRaw = append(page.JSRaw, c.scripts...)
	page.Redirects = redirectChain(mainFrameDocuments(c.documents, page.Iframes), page.FinalURL)
}

// mainFrameDocuments drops the documents loaded by iframes, identified by
// their src, and collapses the repeats that removal leaves behind.
func mainFrameDocuments(documents []string, iframes []models.Iframe) []string {
	out := make([]string, 0, len(documents))
	for _, d := range documents {
		if loadedByIframe(d, iframes) {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == d {
			continue
		}
		out = append(out, d)
	}
	return out
}

func loadedByIframe(u string, iframes []models.Iframe) bool {
	for _, f := range iframes {
		if f.Src != "" && sameDocument(u, f.Src) {
			return true
		}
	}
	return false
}

// redirectChain returns the navigation hops that led to finalURL: every
// top-level document requested before the last request for finalURL.
func redirectChain(documents []string, finalURL string) []string {
	chain := []string{}
	last := -1
	for i, d := range documents {
		if sameDocument(d, finalURL) {
			last = i
		}
	}
	if last < 0 {
		last = len(documents)
		if last > 0 {
			last--
		}
	}
	return append(chain, documents[:last]...)
}

// sameDocument compares URLs ignoring the fragment, which never reaches
// the network.
func sameDocument(a, b string) bool {
	if i := strings.IndexByte(a, '#'); i >= 0 {
		a = a[:i]
	}
	if i := strings.IndexByte(b, '#'); i >= 0 {
		b = b[:i]
	}
	return a == b
}

// consoleText joins console arguments the way DevTools renders them.
func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case arg.Type == proto.RuntimeRemoteObjectTypeString:
			parts = append(parts, arg.Value.Str())
		case arg.Description != "":
			parts = append(parts, arg.Description)
		case arg.Type == proto.RuntimeRemoteObjectTypeUndefined:
			parts = append(parts, "undefined")
		default:
			parts = append(parts, arg.Value.String())
		}
	}
	return strings.Join(parts, " ")
}

// consoleLocation renders the top stack frame as url:line.
func consoleLocation(st *proto.RuntimeStackTrace) string {
	if st == nil || len(st.CallFrames) == 0 {
		return ""
	}
	f := st.CallFrames[0]
	if f.URL == "" {
		return ""
	}
	return f.URL + ":" + strconv.Itoa(f.LineNumber)
}
