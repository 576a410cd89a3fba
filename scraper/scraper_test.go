package scraper

import (
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/linkshield/models"
)

func TestRedirectChain(t *testing.T) {
	tests := []struct {
		name     string
		docs     []string
		finalURL string
		want     []string
	}{
		{"no documents", nil, "https://a.com", []string{}},
		{"direct load", []string{"https://a.com/"}, "https://a.com/", []string{}},
		{
			"two hops",
			[]string{"http://a.com/", "https://a.com/", "https://b.com/login"},
			"https://b.com/login",
			[]string{"http://a.com/", "https://a.com/"},
		},
		{
			"fragment ignored",
			[]string{"https://a.com/", "https://b.com/x"},
			"https://b.com/x#top",
			[]string{"https://a.com/"},
		},
		{
			"final url unknown uses last document",
			[]string{"https://a.com/", "https://b.com/"},
			"https://b.com/app",
			[]string{"https://a.com/"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redirectChain(tt.docs, tt.finalURL)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") || got == nil {
				t.Errorf("redirectChain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMainFrameDocuments(t *testing.T) {
	ads := models.Iframe{Src: "https://ads.example/frame"}
	login := models.Iframe{Src: "https://accounts.google.com/embed#x"}
	tests := []struct {
		name    string
		docs    []string
		iframes []models.Iframe
		want    []string
	}{
		{"no iframes", []string{"http://a.com/", "https://a.com/"}, nil, []string{"http://a.com/", "https://a.com/"}},
		{"iframe document dropped", []string{"http://a.com/", "https://ads.example/frame", "https://a.com/"}, []models.Iframe{ads}, []string{"http://a.com/", "https://a.com/"}},
		{"fragment on src ignored", []string{"https://a.com/", "https://accounts.google.com/embed"}, []models.Iframe{login}, []string{"https://a.com/"}},
		{"repeat collapsed after removal", []string{"https://a.com/", "https://ads.example/frame", "https://a.com/"}, []models.Iframe{ads}, []string{"https://a.com/"}},
		{"empty src keeps everything", []string{"https://a.com/"}, []models.Iframe{{}}, []string{"https://a.com/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mainFrameDocuments(tt.docs, tt.iframes)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("mainFrameDocuments() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollectorFillSkipsIframeHops(t *testing.T) {
	col := newCollector()
	col.addDocument("http://a.com/")
	col.addDocument("https://ads.example/frame")
	col.addDocument("https://a.com/home")

	page := &models.PageExecutionResult{
		FinalURL: "https://a.com/home",
		Iframes:  []models.Iframe{{Src: "https://ads.example/frame"}},
	}
	col.fill(page)
	if len(page.Redirects) != 1 || page.Redirects[0] != "http://a.com/" {
		t.Errorf("Redirects = %q, want [http://a.com/]", page.Redirects)
	}
}

func TestCollectorDedupAndReset(t *testing.T) {
	c := newCollector()
	c.addDocument("https://a.com/")
	c.addDocument("https://a.com/")
	c.addDocument("https://b.com/")
	c.addScript("   ")
	c.addScript("eval(x)")
	c.addRequest(models.NetworkRequest{URL: "https://a.com/", Method: "GET"})
	c.addConsole(models.ConsoleMessage{Type: "log", Text: "hi"})

	page := &models.PageExecutionResult{FinalURL: "https://b.com/"}
	c.fill(page)
	if len(page.Redirects) != 1 || page.Redirects[0] != "https://a.com/" {
		t.Errorf("Redirects = %q", page.Redirects)
	}
	if len(page.JSRaw) != 1 {
		t.Errorf("JSRaw = %q, want one script", page.JSRaw)
	}
	if len(page.NetworkRequests) != 1 || len(page.ConsoleMessages) != 1 {
		t.Errorf("requests=%d console=%d", len(page.NetworkRequests), len(page.ConsoleMessages))
	}

	c.reset()
	page = &models.PageExecutionResult{FinalURL: "https://b.com/"}
	c.fill(page)
	if len(page.Redirects) != 0 || len(page.JSRaw) != 0 || len(page.NetworkRequests) != 0 {
		t.Errorf("reset left data behind: %+v", page)
	}
	if page.ConsoleMessages == nil || page.NetworkRequests == nil {
		t.Error("fill should produce empty slices, not nil")
	}
}

func TestCollectorScriptCap(t *testing.T) {
	c := newCollector()
	big := strings.Repeat("a", maxScriptCapture+10)
	c.addScript(big)
	if len(c.scripts[0]) != maxScriptCapture {
		t.Errorf("script len = %d, want %d", len(c.scripts[0]), maxScriptCapture)
	}
	for i := 0; i < maxScriptsTotal/maxScriptCapture+2; i++ {
		c.addScript(big)
	}
	if c.scriptBytes > maxScriptsTotal {
		t.Errorf("scriptBytes = %d exceeds %d", c.scriptBytes, maxScriptsTotal)
	}
}

func TestConsoleText(t *testing.T) {
	args := []*proto.RuntimeRemoteObject{
		{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("token")},
		{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(42), Description: "42"},
		{Type: proto.RuntimeRemoteObjectTypeUndefined},
		nil,
		{Type: proto.RuntimeRemoteObjectTypeObject, Description: "Object"},
	}
	if got, want := consoleText(args), "token 42 undefined Object"; got != want {
		t.Errorf("consoleText() = %q, want %q", got, want)
	}
}

func TestConsoleLocation(t *testing.T) {
	if got := consoleLocation(nil); got != "" {
		t.Errorf("nil stack = %q, want empty", got)
	}
	st := &proto.RuntimeStackTrace{CallFrames: []*proto.RuntimeCallFrame{
		{URL: "https://a.com/app.js", LineNumber: 12},
	}}
	if got, want := consoleLocation(st), "https://a.com/app.js:12"; got != want {
		t.Errorf("consoleLocation() = %q, want %q", got, want)
	}
}

func TestBlockedSet(t *testing.T) {
	got := blockedSet([]string{"Font", "Media", "Script", "Bogus"})
	if _, ok := got[proto.NetworkResourceTypeFont]; !ok {
		t.Error("Font should be blocked")
	}
	if _, ok := got[proto.NetworkResourceTypeScript]; ok {
		t.Error("Script must never be blocked")
	}
	if len(got) != 2 {
		t.Errorf("blocked set size = %d, want 2", len(got))
	}
}

func TestPageHealth(t *testing.T) {
	h := newPageHealth(2, 5)
	h.RecordFailure()
	if h.ShouldRetire() {
		t.Error("one failure should not retire")
	}
	h.RecordSuccess()
	h.RecordFailure()
	if h.ShouldRetire() {
		t.Error("score 1.5 should not retire at threshold 2")
	}
	h.RecordFailure()
	if !h.ShouldRetire() {
		t.Error("score 2.5 should retire")
	}

	used := newPageHealth(0, 0)
	for i := 0; i < 50; i++ {
		used.RecordSuccess()
	}
	if !used.ShouldRetire() {
		t.Error("default max uses should retire after 50")
	}

	old := newPageHealth(3, 50)
	old.created = time.Now().Add(-maxPageAge)
	if !old.ShouldRetire() {
		t.Error("old page should retire")
	}
}
