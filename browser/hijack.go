package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains lists ad and tracking networks blocked when BlockAds is set.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"segment.io":            {},
	"chartbeat.com":         {},
	"quantserve.com":        {},
	"consensu.org":          {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	// Check exact match first.
	if _, ok := adDomains[host]; ok {
		return true
	}
	// Check parent domains (e.g., "pagead2.googlesyndication.com" → "googlesyndication.com").
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor that fails the configured
// resource types and, optionally, ad/tracking hosts. It lives for the whole
// session; rodPage.Close stops it. Returns nil if there is nothing to block.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()

	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if blockAds {
			if u, err := url.Parse(ctx.Request.URL().String()); err == nil {
				if isAdDomain(u.Hostname()) {
					ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
					return
				}
			}
		}

		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It will exit when router.Stop() is called.
	go router.Run()

	return router
}
