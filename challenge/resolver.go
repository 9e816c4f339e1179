package challenge

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/reader/clock"
)

// Method names how a challenge was observed to clear.
type Method string

const (
	MethodURLRedirect    Method = "url_redirect"
	MethodSignalsCleared Method = "signals_cleared"
	MethodTimeout        Method = "timeout"
)

// Resolution is the outcome of waiting for a challenge.
type Resolution struct {
	Resolved bool          `json:"resolved"`
	Method   Method        `json:"method"`
	Waited   time.Duration `json:"waited"`
}

// ResolveOptions bounds the wait.
type ResolveOptions struct {
	MaxWait      time.Duration // default: 45s
	PollInterval time.Duration // default: 500ms
}

const (
	DefaultMaxWait      = 45 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// ResolvablePage is what the resolver needs from a browser page.
type ResolvablePage interface {
	Page
	URL(ctx context.Context) (string, error)
	WaitLoad(ctx context.Context) error
	WaitStable(ctx context.Context) error
}

// Resolver polls a page until a challenge clears or the wait budget runs out.
type Resolver struct {
	detector *Detector
	clock    clock.Clock
}

// NewResolver returns a Resolver. A nil clock means wall-clock time.
func NewResolver(d *Detector, c clock.Clock) *Resolver {
	if d == nil {
		d = NewDetector()
	}
	if c == nil {
		c = clock.Real()
	}
	return &Resolver{detector: d, clock: c}
}

// WaitForResolution waits for the page to leave initialURL or for the
// challenge signals to disappear. Elapsed time is checked before every probe,
// and each probe runs under a context bounded by the remaining budget, so the
// total wait does not run past MaxWait. Cancelling ctx ends the wait with
// MethodTimeout.
func (r *Resolver) WaitForResolution(ctx context.Context, page ResolvablePage, initialURL string, opts ResolveOptions) Resolution {
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	start := r.clock.Now()
	elapsed := func() time.Duration { return r.clock.Now().Sub(start) }

	for {
		if ctx.Err() != nil || elapsed() >= opts.MaxWait {
			return r.timedOut(initialURL, elapsed())
		}

		if method, ok := r.probe(ctx, page, initialURL, opts.MaxWait-elapsed(), elapsed); ok {
			r.settle(ctx, page)
			waited := elapsed()
			slog.Debug("challenge resolved", "url", initialURL, "method", method, "waited", waited)
			return Resolution{Resolved: true, Method: method, Waited: waited}
		}

		remaining := opts.MaxWait - elapsed()
		if remaining <= 0 {
			continue
		}
		if err := r.clock.Sleep(ctx, min(opts.PollInterval, remaining)); err != nil {
			return r.timedOut(initialURL, elapsed())
		}
	}
}

// probe performs one URL check and, when the URL is unchanged and time
// remains, one detector pass.
func (r *Resolver) probe(ctx context.Context, page ResolvablePage, initialURL string, budget time.Duration, elapsed func() time.Duration) (Method, bool) {
	checkCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	deadline := elapsed() + budget

	current, err := page.URL(checkCtx)
	if err == nil && current != initialURL && current != "" {
		return MethodURLRedirect, true
	}
	if checkCtx.Err() != nil || elapsed() >= deadline {
		return "", false
	}

	d := r.detector.Detect(checkCtx, page)
	if checkCtx.Err() != nil {
		// The markup read was cut short; that says nothing about the page.
		return "", false
	}
	if !d.IsChallenge {
		return MethodSignalsCleared, true
	}
	return "", false
}

func (r *Resolver) settle(ctx context.Context, page ResolvablePage) {
	if err := page.WaitLoad(ctx); err != nil {
		slog.Debug("challenge: document ready wait failed", "error", err)
	}
	if err := page.WaitStable(ctx); err != nil {
		slog.Debug("challenge: paint stability wait failed", "error", err)
	}
}

func (r *Resolver) timedOut(url string, waited time.Duration) Resolution {
	slog.Debug("challenge not resolved", "url", url, "waited", waited)
	return Resolution{Resolved: false, Method: MethodTimeout, Waited: waited}
}
