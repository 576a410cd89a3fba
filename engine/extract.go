package engine

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/linkshield/models"
)

var (
	iframeSel      = cascadia.MustCompile("iframe")
	inlineJSSel    = cascadia.MustCompile("script:not([src])")
	subresourceSel = cascadia.MustCompile("script[src], link[href][rel~=stylesheet], img[src], iframe[src], embed[src]")
)

// pageArtifacts is what a static engine can learn from HTML alone.
type pageArtifacts struct {
	title     string
	iframes   []models.Iframe
	inlineJS  []string
	requests  []models.NetworkRequest
	scriptSrc []string
}

// extractArtifacts parses rawHTML and collects iframes, inline scripts and
// the subresources a browser would request. Relative URLs are resolved
// against pageURL.
func extractArtifacts(rawHTML, pageURL string) pageArtifacts {
	var out pageArtifacts
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return out
	}
	base, _ := url.Parse(pageURL)
	out.title = extractTitle(rawHTML)

	for _, n := range cascadia.QueryAll(doc, iframeSel) {
		out.iframes = append(out.iframes, iframeFromNode(n, base))
	}
	for _, n := range cascadia.QueryAll(doc, inlineJSSel) {
		if text := strings.TrimSpace(nodeText(n)); text != "" {
			out.inlineJS = append(out.inlineJS, text)
		}
	}
	for _, n := range cascadia.QueryAll(doc, subresourceSel) {
		attr := "src"
		if n.Data == "link" {
			attr = "href"
		}
		ref := resolve(base, attrOf(n, attr))
		if ref == "" {
			continue
		}
		out.requests = append(out.requests, models.NetworkRequest{
			URL:          ref,
			Method:       "GET",
			ResourceType: resourceType(n.Data),
		})
		if n.Data == "script" {
			out.scriptSrc = append(out.scriptSrc, ref)
		}
	}
	return out
}

func iframeFromNode(n *html.Node, base *url.URL) models.Iframe {
	style := parseInlineStyle(attrOf(n, "style"))
	f := models.Iframe{
		Src:        resolve(base, attrOf(n, "src")),
		Display:    style["display"],
		Visibility: style["visibility"],
	}
	if w, ok := numericAttr(attrOf(n, "width"), style["width"]); ok {
		f.Width = models.Num(w)
	}
	if h, ok := numericAttr(attrOf(n, "height"), style["height"]); ok {
		f.Height = models.Num(h)
	}
	if o, ok := numericAttr(style["opacity"], ""); ok {
		f.Opacity = models.Num(o)
	}
	if _, hidden := attrLookup(n, "hidden"); hidden && f.Display == "" {
		f.Display = "none"
	}
	if v, ok := attrLookup(n, "sandbox"); ok {
		f.Sandbox = &v
	}
	return f
}

// parseInlineStyle splits a style attribute into lowercased declarations.
func parseInlineStyle(style string) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(v)
	}
	return out
}

func numericAttr(values ...string) (float64, bool) {
	for _, v := range values {
		v = strings.TrimSuffix(strings.TrimSpace(v), "px")
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func resourceType(tag string) string {
	switch tag {
	case "script":
		return "script"
	case "link":
		return "stylesheet"
	case "img":
		return "image"
	case "iframe":
		return "document"
	default:
		return "other"
	}
}

func attrOf(n *html.Node, key string) string {
	v, _ := attrLookup(n, key)
	return v
}

func attrLookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
