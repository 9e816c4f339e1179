package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/reader/browser"
	"github.com/use-agent/reader/challenge"
	"github.com/use-agent/reader/engine"
	"github.com/use-agent/reader/pool"
)

// ErrChallenge is returned for pages whose anti-bot challenge did not clear.
var ErrChallenge = errors.New("crawler: challenge not resolved")

type challengeError struct{ detail string }

func (e *challengeError) Error() string     { return ErrChallenge.Error() + ": " + e.detail }
func (e *challengeError) Unwrap() error     { return ErrChallenge }
func (e *challengeError) SiteOutcome() bool { return true }

// Document is a fetched page.
type Document struct {
	HTML     string
	FinalURL string
}

// Fetcher loads one page for the crawler.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

// SessionPool hands out browser sessions for the duration of fn.
type SessionPool interface {
	WithSession(ctx context.Context, fn func(*pool.Session) error) error
}

// defaultPageTimeout bounds navigation and load of one page.
const defaultPageTimeout = 30 * time.Second

// BrowserFetcher renders pages in pooled browser sessions and waits out
// challenges before reading the document.
type BrowserFetcher struct {
	pool        SessionPool
	detector    *challenge.Detector
	resolver    *challenge.Resolver
	resolve     challenge.ResolveOptions
	pageTimeout time.Duration
}

// NewBrowserFetcher creates a fetcher over p. The resolver may be nil.
func NewBrowserFetcher(p SessionPool, r *challenge.Resolver, opts challenge.ResolveOptions) *BrowserFetcher {
	d := challenge.NewDetector()
	if r == nil {
		r = challenge.NewResolver(d, nil)
	}
	return &BrowserFetcher{
		pool:        p,
		detector:    d,
		resolver:    r,
		resolve:     opts,
		pageTimeout: defaultPageTimeout,
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, target string) (*Document, error) {
	var doc *Document
	err := f.pool.WithSession(ctx, func(s *pool.Session) error {
		page := s.Page()
		defer resetPage(page)

		navCtx, cancel := context.WithTimeout(ctx, f.pageTimeout)
		defer cancel()
		if err := page.Navigate(navCtx, target); err != nil {
			return fmt.Errorf("crawler: navigate: %w", err)
		}
		if err := page.WaitStable(navCtx); err != nil {
			slog.Debug("crawler: page did not settle", "url", target, "error", err)
		}

		initialURL, err := page.URL(ctx)
		if err != nil {
			return fmt.Errorf("crawler: read url: %w", err)
		}
		if det := f.detector.Detect(ctx, page); det.IsChallenge {
			slog.Info("crawler: challenge detected", "url", target, "type", det.Type)
			if det.Type == challenge.TypeBlocked {
				return &challengeError{detail: string(det.Type)}
			}
			if res := f.resolver.WaitForResolution(ctx, page, initialURL, f.resolve); !res.Resolved {
				return &challengeError{detail: fmt.Sprintf("%s after %s", det.Type, res.Waited)}
			}
		}

		html, err := page.HTML(ctx)
		if err != nil {
			return fmt.Errorf("crawler: read html: %w", err)
		}
		finalURL, err := page.URL(ctx)
		if err != nil || finalURL == "" {
			finalURL = target
		}
		doc = &Document{HTML: html, FinalURL: finalURL}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func resetPage(page browser.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = page.Reset(ctx)
}

// Retriever runs the engine cascade.
type Retriever interface {
	Scrape(ctx context.Context, req *engine.Request) (*engine.Result, error)
}

// CascadeFetcher fetches through the engine cascade. It serves when no
// browser pool is running.
type CascadeFetcher struct {
	retriever Retriever
	timeout   time.Duration
}

// NewCascadeFetcher wraps r; timeout bounds each engine attempt (zero leaves
// the engines' own ceilings).
func NewCascadeFetcher(r Retriever, timeout time.Duration) *CascadeFetcher {
	return &CascadeFetcher{retriever: r, timeout: timeout}
}

func (f *CascadeFetcher) Fetch(ctx context.Context, target string) (*Document, error) {
	res, err := f.retriever.Scrape(ctx, &engine.Request{URL: target, Timeout: f.timeout})
	if err != nil {
		return nil, err
	}
	return &Document{HTML: res.HTML, FinalURL: res.FinalURL}, nil
}
