package engine

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultMinContentLength is the visible-text threshold below which a page is
// treated as empty.
const DefaultMinContentLength = 100

var defaultHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "identity",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Sec-Ch-Ua":                 `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// Substrings that mark an anti-bot interstitial in a raw response body.
// Matching is case-insensitive.
var challengeMarkers = []string{
	"cf-browser-verification",
	"cf_chl_opt",
	"challenge-platform",
	"cf-spinner",
	"just a moment",
	"checking your browser",
	"checking if the site connection is secure",
	"enable javascript and cookies",
	"attention required",
	"_cf_chl_tk",
	"verifying you are human",
	"cf-turnstile",
	"/cdn-cgi/challenge-platform/",
	"please wait...",
	"ddos protection by",
	"access denied",
	"bot detection",
	"are you a robot",
	"complete the security check",
}

var cloudflareMarkers = []string{
	"/cdn-cgi/",
	"cloudflare",
	"__cf_bm",
	"cf-ray",
}

// detectChallenge returns "cloudflare" or "bot-detection" for a body that
// carries a challenge marker, and "" otherwise.
func detectChallenge(body string) string {
	lower := strings.ToLower(body)
	cloudflare := false
	for _, m := range cloudflareMarkers {
		if strings.Contains(lower, m) {
			cloudflare = true
			break
		}
	}
	for _, m := range challengeMarkers {
		if !strings.Contains(lower, m) {
			continue
		}
		if cloudflare || strings.Contains(m, "cf") {
			return "cloudflare"
		}
		return "bot-detection"
	}
	return ""
}

// extractText returns the visible text of an HTML document: script and style
// contents dropped, tags stripped, whitespace collapsed.
func extractText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if tn, _ := z.TagName(); isHiddenTag(string(tn)) {
				skip++
			}
		case html.EndTagToken:
			if tn, _ := z.TagName(); isHiddenTag(string(tn)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(name string) bool {
	return name == "script" || name == "style" || name == "noscript"
}

// checkContent classifies a fetched document that came back with a
// non-error status.
func checkContent(engine, body string, minLength int) *ClassifiedError {
	if ct := detectChallenge(body); ct != "" {
		return NewChallengeDetected(engine, ct)
	}
	if n := utf8.RuneCountInString(extractText(body)); n < minLength {
		return NewInsufficientContent(engine, n, minLength)
	}
	return nil
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
