package engine

import (
	"context"
	"net/http"
	"time"
)

// Engine names.
const (
	NameDirectFetch         = "direct-fetch"
	NameFingerprintedClient = "fingerprinted-client"
	NameBrowserAutomation   = "browser-automation"
)

// DefaultOrder is the cascade order used when none is configured.
var DefaultOrder = []string{NameDirectFetch, NameFingerprintedClient, NameBrowserAutomation}

// Engine is one retrieval strategy.
type Engine interface {
	// Name returns the engine identifier (e.g. "direct-fetch").
	Name() string

	// Scrape retrieves the page. Failures are *ClassifiedError.
	Scrape(ctx context.Context, req *Request) (*Result, error)

	// Available reports whether the engine has what it needs to run.
	Available() bool

	// MaxTimeout is the ceiling for a single attempt with this engine.
	MaxTimeout() time.Duration
}

// Request describes one retrieval. Engines treat it as read-only.
type Request struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string

	// ForceEngine restricts the cascade to a single engine.
	ForceEngine string

	// SkipEngines removes engines from the cascade.
	SkipEngines []string
}

// Result is the output of a successful retrieval.
type Result struct {
	HTML       string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Engine     string
	Duration   time.Duration

	// AttemptedEngines lists every engine tried, in order, ending with Engine.
	AttemptedEngines []string

	// EngineErrors holds the failures of the engines tried before Engine.
	EngineErrors map[string]*ClassifiedError
}
