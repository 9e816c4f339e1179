package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/use-agent/reader/browser"
	"github.com/use-agent/reader/challenge"
	"github.com/use-agent/reader/clock"
	"github.com/use-agent/reader/pool"
)

const browserMaxTimeout = 60 * time.Second

// challengeURLMarker appears in URLs while a Cloudflare challenge is still
// bouncing the browser between pages.
const challengeURLMarker = "__cf_chl"

// SessionPool hands out browser sessions for the duration of fn.
type SessionPool interface {
	WithSession(ctx context.Context, fn func(*pool.Session) error) error
}

// BrowserOptions tunes the browser-automation engine. Zero values select the
// defaults.
type BrowserOptions struct {
	MaxTimeout       time.Duration // default: 60s
	MinContentLength int           // default: 100

	ResolveMaxWait time.Duration // default: 45s
	ResolvePoll    time.Duration // default: 500ms

	SettleMaxWait time.Duration // default: 15s
	SettlePoll    time.Duration // default: 500ms

	Clock clock.Clock
}

func (o BrowserOptions) withDefaults() BrowserOptions {
	if o.MaxTimeout <= 0 {
		o.MaxTimeout = browserMaxTimeout
	}
	if o.MinContentLength <= 0 {
		o.MinContentLength = DefaultMinContentLength
	}
	if o.ResolveMaxWait <= 0 {
		o.ResolveMaxWait = challenge.DefaultMaxWait
	}
	if o.ResolvePoll <= 0 {
		o.ResolvePoll = challenge.DefaultPollInterval
	}
	if o.SettleMaxWait <= 0 {
		o.SettleMaxWait = 15 * time.Second
	}
	if o.SettlePoll <= 0 {
		o.SettlePoll = 500 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}

// BrowserEngine renders pages in a pooled browser tab and waits out
// anti-bot challenges.
type BrowserEngine struct {
	pool     SessionPool
	detector *challenge.Detector
	resolver *challenge.Resolver
	opts     BrowserOptions
}

// NewBrowserEngine creates the engine. Pass a nil pool (untyped) to get an
// engine that reports itself unavailable.
func NewBrowserEngine(p SessionPool, opts BrowserOptions) *BrowserEngine {
	opts = opts.withDefaults()
	d := challenge.NewDetector()
	return &BrowserEngine{
		pool:     p,
		detector: d,
		resolver: challenge.NewResolver(d, opts.Clock),
		opts:     opts,
	}
}

func (e *BrowserEngine) Name() string              { return NameBrowserAutomation }
func (e *BrowserEngine) Available() bool           { return e.pool != nil }
func (e *BrowserEngine) MaxTimeout() time.Duration { return e.opts.MaxTimeout }

func (e *BrowserEngine) Scrape(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	if e.pool == nil {
		return nil, NewEngineUnavailable(e.Name(), "browser pool not available", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewTimeout(e.Name(), 0, err)
	}

	var result *Result
	err := e.pool.WithSession(ctx, func(s *pool.Session) error {
		page := s.Page()
		defer resetPage(page)

		r, err := e.render(ctx, page, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewTimeout(e.Name(), e.opts.MaxTimeout, ctx.Err())
		}
		if isPoolExhausted(err) {
			return nil, NewEngineUnavailable(e.Name(), err.Error(), err)
		}
		return nil, Classify(e.Name(), err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func isPoolExhausted(err error) bool {
	return errors.Is(err, pool.ErrQueueFull) ||
		errors.Is(err, pool.ErrQueueTimeout) ||
		errors.Is(err, pool.ErrPoolClosed) ||
		errors.Is(err, pool.ErrNotInitialized)
}

// render drives one page through navigation, challenge handling and redirect
// settling, then extracts the document.
func (e *BrowserEngine) render(ctx context.Context, page browser.Page, req *Request) (*Result, error) {
	name := e.Name()

	if err := page.SetHeaders(ctx, browser.WithReferer(req.URL, req.Headers)); err != nil {
		if ctx.Err() != nil {
			return nil, NewTimeout(name, 0, ctx.Err())
		}
		slog.Debug("browser engine: set headers failed", "url", req.URL, "error", err)
	}

	slog.Debug("engine fetching", "engine", name, "url", req.URL)
	if err := page.Navigate(ctx, req.URL); err != nil {
		if ctx.Err() != nil {
			return nil, NewTimeout(name, 0, ctx.Err())
		}
		return nil, NewGeneric(name, true, fmt.Errorf("navigate: %w", err))
	}
	if err := e.waitSettled(ctx, page); err != nil {
		return nil, NewTimeout(name, 0, err)
	}

	initialURL, err := page.URL(ctx)
	if err != nil || initialURL == "" {
		initialURL = req.URL
	}

	d := e.detector.Detect(ctx, page)
	if ctx.Err() != nil {
		return nil, NewTimeout(name, 0, ctx.Err())
	}
	if d.IsChallenge {
		slog.Debug("browser engine: challenge detected", "url", req.URL, "type", d.Type, "signals", d.Signals)
		if d.Type == challenge.TypeBlocked {
			return nil, NewChallengeDetected(name, string(challenge.TypeBlocked))
		}
		res := e.resolver.WaitForResolution(ctx, page, initialURL, challenge.ResolveOptions{
			MaxWait:      e.opts.ResolveMaxWait,
			PollInterval: e.opts.ResolvePoll,
		})
		if ctx.Err() != nil {
			return nil, NewTimeout(name, 0, ctx.Err())
		}
		if !res.Resolved {
			return nil, NewChallengeDetected(name, "unresolved:"+string(d.Type))
		}
		slog.Debug("browser engine: challenge resolved", "url", req.URL, "method", res.Method, "waited", res.Waited)
	}

	if err := e.settleRedirects(ctx, page, req.URL); err != nil {
		return nil, NewTimeout(name, 0, err)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewTimeout(name, 0, ctx.Err())
		}
		return nil, NewGeneric(name, true, fmt.Errorf("read document: %w", err))
	}
	finalURL, err := page.URL(ctx)
	if err != nil || finalURL == "" {
		finalURL = initialURL
	}
	status := page.StatusCode(ctx)
	if status == 0 {
		status = 200
	}

	if n := utf8.RuneCountInString(extractText(html)); n < e.opts.MinContentLength {
		return nil, NewInsufficientContent(name, n, e.opts.MinContentLength)
	}

	return &Result{
		HTML:       html,
		FinalURL:   finalURL,
		StatusCode: status,
		Engine:     name,
	}, nil
}

// waitSettled is the best-effort document-ready plus paint-stability wait.
// Only a fired ctx is reported.
func (e *BrowserEngine) waitSettled(ctx context.Context, page browser.Page) error {
	if err := page.WaitLoad(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("browser engine: load wait failed", "error", err)
	}
	if err := page.WaitStable(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("browser engine: stability wait failed", "error", err)
	}
	return nil
}

// settleRedirects absorbs the chain of redirects a challenge page issues after
// it clears: the URL is polled until two consecutive polls agree or
// SettleMaxWait passes.
func (e *BrowserEngine) settleRedirects(ctx context.Context, page browser.Page, requested string) error {
	current, err := page.URL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	if trimSlashes(current) == trimSlashes(requested) && !strings.Contains(current, challengeURLMarker) {
		return nil
	}

	slog.Debug("browser engine: settling redirects", "from", requested, "to", current)
	clk := e.opts.Clock
	start := clk.Now()
	last := current
	stable := 0
	for clk.Now().Sub(start) < e.opts.SettleMaxWait {
		if err := clk.Sleep(ctx, e.opts.SettlePoll); err != nil {
			return err
		}
		next, err := page.URL(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if next == last {
			stable++
			if stable >= 2 {
				break
			}
			continue
		}
		stable = 0
		last = next
		slog.Debug("browser engine: url changed", "url", next)
	}
	return e.waitSettled(ctx, page)
}

func trimSlashes(u string) string {
	return strings.TrimRight(u, "/")
}

// resetPage returns the tab to a blank state so the next caller inherits no
// headers or document.
func resetPage(page browser.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := page.Reset(ctx); err != nil {
		slog.Debug("browser engine: page reset failed", "error", err)
	}
}
