package challenge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/reader/browser/browsertest"
	"github.com/use-agent/reader/clock"
)

const challengePage = `<html><head><script src="/cdn-cgi/challenge-platform/h/b/orchestrate/jsch/v1"></script></head>
<body><div id="challenge-running">Checking if the site connection is secure</div>
<div id="challenge-stage"></div><p>Ray ID: 7f00aa</p></body></html>`

const blockPage = `<html><body><div id="cf-wrapper"><h1>Sorry, you have been blocked</h1>
<p>Cloudflare Ray ID: 7f00aa</p><span>Performance &amp; security by Cloudflare</span></div></body></html>`

const articlePage = `<html><body><article><h1>Release notes</h1><p>Served from cloudflare edge.</p>
<p>Plenty of ordinary text that talks about caching and nothing else.</p></article></body></html>`

func TestEvaluate(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name     string
		markup   string
		want     bool
		wantType Type
		conf     int
	}{
		{"challenge", challengePage, true, TypeJSChallenge, 100},
		{"block page", blockPage, true, TypeBlocked, 100},
		{"indicator without infrastructure", `<div id="challenge-running">Checking if the site connection is secure. Ray ID: 1</div>`, false, TypeNone, 0},
		{"infrastructure without indicator", articlePage, false, TypeNone, 0},
		{"element only", `<div id="turnstile-wrapper"></div><script src="/cdn-cgi/x.js"></script>`, true, TypeJSChallenge, 100},
		{"waiting pair", `<p>Waiting for example.com to respond...</p><!-- cf-ray -->`, true, TypeJSChallenge, 100},
		{"empty", "", false, TypeNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Evaluate(tt.markup)
			assert.Equal(t, tt.want, got.IsChallenge)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.conf, got.Confidence)
			assert.NotEmpty(t, got.Signals)
		})
	}
}

func TestEvaluateElementSignals(t *testing.T) {
	got := NewDetector().Evaluate(challengePage)
	assert.Contains(t, got.Signals, "element: #challenge-running")
	assert.Contains(t, got.Signals, "element: #challenge-stage")
	assert.NotContains(t, got.Signals, "element: #turnstile-wrapper")
}

func TestEvaluateNoInfrastructureSignal(t *testing.T) {
	got := NewDetector().Evaluate("<p>Ray ID: 42</p>")
	assert.Equal(t, []string{"no challenge infrastructure detected"}, got.Signals)
}

func TestDetectMarkupUnavailable(t *testing.T) {
	page := browsertest.NewFakePage(nil)
	page.HTMLErr = errors.New("target closed")

	got := NewDetector().Detect(context.Background(), page)
	assert.False(t, got.IsChallenge)
	assert.Equal(t, TypeNone, got.Type)
	require.Len(t, got.Signals, 1)
	assert.True(t, strings.HasPrefix(got.Signals[0], "markup unavailable"))
}

func TestResolverTimeoutIsExact(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	r := NewResolver(NewDetector(), fc)

	page := browsertest.NewFakePage(nil)
	page.SetDocument("https://example.test/b", challengePage)

	res := r.WaitForResolution(context.Background(), page, "https://example.test/b", ResolveOptions{
		MaxWait:      45000 * time.Millisecond,
		PollInterval: 500 * time.Millisecond,
	})

	assert.False(t, res.Resolved)
	assert.Equal(t, MethodTimeout, res.Method)
	assert.Equal(t, 45*time.Second, res.Waited)
	assert.Equal(t, time.Unix(0, 0).Add(45*time.Second), fc.Now())
}

func TestResolverTimeoutUnevenInterval(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	r := NewResolver(nil, fc)

	page := browsertest.NewFakePage(nil)
	page.SetDocument("https://example.test/b", challengePage)

	res := r.WaitForResolution(context.Background(), page, "https://example.test/b", ResolveOptions{
		MaxWait:      1100 * time.Millisecond,
		PollInterval: 500 * time.Millisecond,
	})
	assert.Equal(t, MethodTimeout, res.Method)
	assert.Equal(t, 1100*time.Millisecond, res.Waited)
}

func TestResolverURLRedirect(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	r := NewResolver(NewDetector(), fc)

	page := browsertest.NewFakePage(nil)
	page.SetDocument("https://example.test/b", challengePage)
	page.OnURL = func(p *browsertest.FakePage, calls int) {
		if calls == 4 {
			p.SetDocument("https://example.test/b?cf_cleared=1", "<html><body>welcome</body></html>")
		}
	}

	res := r.WaitForResolution(context.Background(), page, "https://example.test/b", ResolveOptions{})

	assert.True(t, res.Resolved)
	assert.Equal(t, MethodURLRedirect, res.Method)
	assert.LessOrEqual(t, res.Waited, 2*time.Second)
}

func TestResolverSignalsCleared(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	r := NewResolver(NewDetector(), fc)

	page := browsertest.NewFakePage(nil)
	page.SetDocument("https://example.test/c", challengePage)
	page.OnURL = func(p *browsertest.FakePage, calls int) {
		if calls == 3 {
			// Same URL, content swapped in place.
			p.SetDocument("https://example.test/c", articlePage)
		}
	}

	res := r.WaitForResolution(context.Background(), page, "https://example.test/c", ResolveOptions{})

	assert.True(t, res.Resolved)
	assert.Equal(t, MethodSignalsCleared, res.Method)
	assert.Equal(t, time.Second, res.Waited)
}

func TestResolverCancelled(t *testing.T) {
	r := NewResolver(NewDetector(), clock.NewFake(time.Unix(0, 0)))

	page := browsertest.NewFakePage(nil)
	page.SetDocument("https://example.test/b", challengePage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.WaitForResolution(ctx, page, "https://example.test/b", ResolveOptions{})
	assert.False(t, res.Resolved)
	assert.Equal(t, MethodTimeout, res.Method)
	assert.Zero(t, res.Waited)
}
