// Package challenge recognises anti-bot interstitial pages and waits for them
// to clear.
package challenge

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Type names the kind of interstitial detected.
type Type string

const (
	TypeNone        Type = "none"
	TypeJSChallenge Type = "js_challenge"
	TypeTurnstile   Type = "turnstile"
	TypeCaptcha     Type = "captcha"
	TypeBlocked     Type = "blocked"
)

// Detection is the outcome of inspecting a page.
type Detection struct {
	IsChallenge bool     `json:"is_challenge"`
	Type        Type     `json:"type"`
	Confidence  int      `json:"confidence"`
	Signals     []string `json:"signals"`
}

// Page is the slice of browser.Page the detector reads.
type Page interface {
	HTML(ctx context.Context) (string, error)
}

// Markers of challenge-serving infrastructure. Pages with none are never
// flagged.
var infraMarkers = []string{
	"/cdn-cgi/",
	"cloudflare",
	"__cf_bm",
	"cf-ray",
}

var challengeSelectors = []string{
	"#challenge-running",
	"#challenge-stage",
	"#challenge-form",
	".cf-browser-verification",
	"#cf-wrapper",
	"#cf-hcaptcha-container",
	"#turnstile-wrapper",
}

var challengeTextPatterns = []string{
	"checking if the site connection is secure",
	"this process is automatic. your browser will redirect",
	"ray id:",
	"performance & security by cloudflare",
}

// Every pattern must be present for a page to count as a hard block.
var blockedPatterns = []string{
	"sorry, you have been blocked",
	"ray id:",
}

type compiledSelector struct {
	raw     string
	matcher cascadia.Selector
}

var compiledSelectors = func() []compiledSelector {
	out := make([]compiledSelector, 0, len(challengeSelectors))
	for _, s := range challengeSelectors {
		out = append(out, compiledSelector{raw: s, matcher: cascadia.MustCompile(s)})
	}
	return out
}()

// Detector classifies page markup. The zero value is ready to use.
type Detector struct{}

// NewDetector returns a Detector.
func NewDetector() *Detector { return &Detector{} }

// Detect reads the page markup and evaluates it. It never fails: a page whose
// markup cannot be read is reported as not a challenge.
func (d *Detector) Detect(ctx context.Context, page Page) Detection {
	html, err := page.HTML(ctx)
	if err != nil {
		return Detection{
			Type:    TypeNone,
			Signals: []string{"markup unavailable: " + err.Error()},
		}
	}
	return d.Evaluate(html)
}

// Evaluate classifies raw markup. A page is a challenge only when an
// infrastructure marker and at least one indicator (a challenge element or a
// challenge text pattern) are both present.
func (d *Detector) Evaluate(markup string) Detection {
	lower := strings.ToLower(markup)

	var infra []string
	for _, m := range infraMarkers {
		if strings.Contains(lower, m) {
			infra = append(infra, "infrastructure: "+m)
		}
	}
	if len(infra) == 0 {
		return Detection{
			Type:    TypeNone,
			Signals: []string{"no challenge infrastructure detected"},
		}
	}

	signals := append([]string(nil), infra...)

	var elements []string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup)); err == nil {
		for _, cs := range compiledSelectors {
			if doc.FindMatcher(cs.matcher).Length() > 0 {
				elements = append(elements, "element: "+cs.raw)
			}
		}
	}

	text := textPatterns(lower)

	signals = append(signals, elements...)
	signals = append(signals, text...)

	if len(elements) == 0 && len(text) == 0 {
		return Detection{Type: TypeNone, Signals: signals}
	}

	typ := TypeJSChallenge
	if matchesAll(lower, blockedPatterns) {
		typ = TypeBlocked
		signals = append(signals, "block page")
	}
	return Detection{
		IsChallenge: true,
		Type:        typ,
		Confidence:  100,
		Signals:     signals,
	}
}

func textPatterns(lower string) []string {
	var found []string
	for _, p := range challengeTextPatterns {
		if strings.Contains(lower, p) {
			found = append(found, "text: "+p)
		}
	}
	if strings.Contains(lower, "waiting for") && strings.Contains(lower, "to respond") {
		found = append(found, "text: waiting for ... to respond")
	}
	return found
}

func matchesAll(lower string, patterns []string) bool {
	for _, p := range patterns {
		if !strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
