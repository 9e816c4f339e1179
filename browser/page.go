// Package browser wraps a rod-driven Chromium into pooled, stealth-configured
// pages behind the small Page interface used by the pool, the challenge
// detector and the browser-automation engine.
package browser

import (
	"context"
)

// Page is one browser-automation session: an isolated browser context with a
// single tab. Every blocking call honours ctx.
type Page interface {
	// Navigate loads url and returns once the navigation has committed.
	Navigate(ctx context.Context, url string) error

	// WaitLoad waits for the document ready milestone.
	WaitLoad(ctx context.Context) error

	// WaitStable waits until the DOM stops changing (paint stability).
	WaitStable(ctx context.Context) error

	// URL returns the current top-level document URL.
	URL(ctx context.Context) (string, error)

	// HTML returns the outer HTML of the current document.
	HTML(ctx context.Context) (string, error)

	// StatusCode reports the HTTP status of the last navigation, or 0 when
	// the browser does not expose it.
	StatusCode(ctx context.Context) int

	// SetHeaders installs extra request headers for subsequent navigations.
	// A nil or empty map clears them.
	SetHeaders(ctx context.Context, headers map[string]string) error

	// Reset returns the page to about:blank so the next user starts clean.
	Reset(ctx context.Context) error

	// Close releases the tab and its browser context.
	Close() error
}

// Factory creates a fresh Page.
type Factory func(ctx context.Context) (Page, error)
