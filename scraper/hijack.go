package scraper

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/linkshield/models"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// blockedSet builds an O(1) lookup set from config strings. Unknown names
// are ignored. Scripts are never blocked since their bodies feed the JS
// detector.
func blockedSet(blockedTypes []string) map[proto.NetworkResourceType]struct{} {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		rt, ok := configToProto[name]
		if !ok || rt == proto.NetworkResourceTypeScript {
			continue
		}
		blocked[rt] = struct{}{}
	}
	return blocked
}

// setupHijack installs a request interceptor on the page that records
// every request into col, blocks the configured resource types and
// captures script bodies.
//
// Returns the running HijackRouter so the caller can defer router.Stop().
func setupHijack(page *rod.Page, blockedTypes []string, col *collector, client *http.Client) *rod.HijackRouter {
	blocked := blockedSet(blockedTypes)
	router := page.HijackRequests()

	// Pattern "*" + empty resourceType = intercept ALL requests, then
	// decide per-request whether to block or continue.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		rt := ctx.Request.Type()
		reqURL := ctx.Request.URL().String()

		col.addRequest(models.NetworkRequest{
			URL:          reqURL,
			Method:       ctx.Request.Method(),
			ResourceType: strings.ToLower(string(rt)),
			PostData:     ctx.Request.Body(),
		})

		// Iframe documents are filtered out once the iframe srcs are known.
		if ctx.Request.IsNavigation() {
			col.addDocument(reqURL)
		}

		if _, shouldBlock := blocked[rt]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if rt == proto.NetworkResourceTypeScript {
			err := ctx.LoadResponse(client, true)
			if err == nil {
				col.addScript(ctx.Response.Body())
				return
			}
			slog.Debug("script capture failed, continuing natively", "url", reqURL, "error", err)
		}

		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It will exit when router.Stop() is called.
	go router.Run()

	return router
}
