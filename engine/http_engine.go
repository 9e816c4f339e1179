package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	directFetchMaxTimeout = 10 * time.Second
	maxBodyBytes          = 10 << 20
	maxRedirects          = 10
)

// netEngine is the shared core of the two plain-HTTP engines. They differ
// only in the transport that dials the connection.
type netEngine struct {
	name       string
	client     *http.Client
	maxTimeout time.Duration
	minContent int
}

func newNetEngine(name string, transport http.RoundTripper, maxTimeout time.Duration, minContent int) *netEngine {
	if minContent <= 0 {
		minContent = DefaultMinContentLength
	}
	return &netEngine{
		name:       name,
		maxTimeout: maxTimeout,
		minContent: minContent,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

func (e *netEngine) Name() string              { return e.name }
func (e *netEngine) MaxTimeout() time.Duration { return e.maxTimeout }

func (e *netEngine) Scrape(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, NewTimeout(e.name, e.maxTimeout, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, NewGeneric(e.name, false, fmt.Errorf("build request: %w", err))
	}
	for k, v := range defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	slog.Debug("engine fetching", "engine", e.name, "url", req.URL)
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, e.transportError(ctx, fmt.Errorf("read body: %w", err))
	}
	html := string(body)

	slog.Debug("engine response", "engine", e.name, "url", req.URL,
		"status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))

	if resp.StatusCode >= 400 {
		return nil, NewHTTPStatus(e.name, resp.StatusCode)
	}
	if ce := checkContent(e.name, html, e.minContent); ce != nil {
		return nil, ce
	}

	return &Result{
		HTML:       html,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Engine:     e.name,
		Duration:   time.Since(start),
	}, nil
}

// transportError maps a failed round trip. Deadline and cancellation win over
// whatever the transport reported.
func (e *netEngine) transportError(ctx context.Context, err error) *ClassifiedError {
	if ctx.Err() != nil {
		return NewTimeout(e.name, e.maxTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeout(e.name, e.maxTimeout, err)
	}
	return NewGeneric(e.name, true, err)
}

// DirectFetchEngine uses the standard library transport.
type DirectFetchEngine struct {
	*netEngine
}

// NewDirectFetchEngine creates the cheapest engine. minContent <= 0 selects
// DefaultMinContentLength.
func NewDirectFetchEngine(minContent int) *DirectFetchEngine {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &DirectFetchEngine{newNetEngine(NameDirectFetch, transport, directFetchMaxTimeout, minContent)}
}

func (e *DirectFetchEngine) Available() bool { return true }
