// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/use-agent/reader/browser"
)

// ErrClosed is returned by every call on a closed FakePage.
var ErrClosed = errors.New("browsertest: page closed")

// FakePage serves canned documents. Routes maps a URL to the HTML it renders;
// navigating to an unknown URL renders an empty document. OnURL, when set, is
// called at the start of every URL() call and may change the page state via
// SetDocument to simulate redirects.
type FakePage struct {
	Routes      map[string]string
	Status      int
	NavigateErr error
	HTMLErr     error
	LoadErr     error

	// BlockNavigate makes Navigate wait for ctx to be done.
	BlockNavigate bool

	OnURL func(p *FakePage, calls int)

	mu       sync.Mutex
	url      string
	html     string
	headers  map[string]string
	closed   bool
	urlCalls int

	navigations atomic.Int32
	closes      atomic.Int32
}

// NewFakePage returns a FakePage with the given routes.
func NewFakePage(routes map[string]string) *FakePage {
	return &FakePage{Routes: routes, Status: 200, url: "about:blank"}
}

var _ browser.Page = (*FakePage)(nil)

// SetDocument replaces the current URL and HTML.
func (p *FakePage) SetDocument(url, html string) {
	p.mu.Lock()
	p.url = url
	p.html = html
	p.mu.Unlock()
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if p.BlockNavigate {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := p.check(ctx); err != nil {
		return err
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.navigations.Add(1)
	p.mu.Lock()
	p.url = url
	p.html = p.Routes[url]
	p.mu.Unlock()
	return nil
}

func (p *FakePage) WaitLoad(ctx context.Context) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	return p.LoadErr
}

func (p *FakePage) WaitStable(ctx context.Context) error {
	return p.check(ctx)
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.urlCalls++
	calls := p.urlCalls
	hook := p.OnURL
	p.mu.Unlock()
	if hook != nil {
		hook(p, calls)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	if p.HTMLErr != nil {
		return "", p.HTMLErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *FakePage) StatusCode(ctx context.Context) int {
	return p.Status
}

func (p *FakePage) SetHeaders(ctx context.Context, headers map[string]string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.headers = headers
	p.mu.Unlock()
	return nil
}

// Headers returns the extra headers last installed with SetHeaders.
func (p *FakePage) Headers() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headers
}

func (p *FakePage) Reset(ctx context.Context) error {
	p.mu.Lock()
	p.url = "about:blank"
	p.html = ""
	p.headers = nil
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Close() error {
	p.closes.Add(1)
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Navigations returns how many successful Navigate calls were made.
func (p *FakePage) Navigations() int { return int(p.navigations.Load()) }

func (p *FakePage) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

// Factory hands out FakePages built by newPage and records every page created.
type Factory struct {
	mu      sync.Mutex
	pages   []*FakePage
	newPage func() *FakePage
	err     error
}

// NewFactory returns a Factory. A nil newPage yields empty FakePages.
func NewFactory(newPage func() *FakePage) *Factory {
	if newPage == nil {
		newPage = func() *FakePage { return NewFakePage(nil) }
	}
	return &Factory{newPage: newPage}
}

// FailWith makes subsequent Create calls return err (nil restores success).
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Create satisfies browser.Factory.
func (f *Factory) Create(ctx context.Context) (browser.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := f.newPage()
	f.pages = append(f.pages, p)
	return p, nil
}

// Pages returns every page created so far, in creation order.
func (f *Factory) Pages() []*FakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakePage, len(f.pages))
	copy(out, f.pages)
	return out
}

// Created returns the number of pages created.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}
