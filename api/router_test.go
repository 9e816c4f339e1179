package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/reader/cache"
	"github.com/use-agent/reader/config"
	"github.com/use-agent/reader/engine"
	"github.com/use-agent/reader/models"
	"github.com/use-agent/reader/pool"
	"github.com/use-agent/reader/scraper"
)

var article = "<html><head><title>Guide</title></head><body><article><h1>Guide</h1><p>" +
	strings.Repeat("Plenty of readable guide text for the cleaner to keep. ", 6) +
	`</p><a href="/next">next</a></article></body></html>`

// siteRetriever serves canned pages; URLs listed in fail return err.
type siteRetriever struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	calls int
}

func (r *siteRetriever) Scrape(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err, ok := r.fail[req.URL]; ok {
		return nil, err
	}
	html, ok := r.pages[req.URL]
	if !ok {
		html = article
	}
	return &engine.Result{HTML: html, FinalURL: req.URL, StatusCode: 200, Engine: engine.NameDirectFetch,
		AttemptedEngines: []string{engine.NameDirectFetch}}, nil
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Scraper.MaxRetries = 0
	cfg.Crawl.Delay = 0
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}
	return cfg
}

type testServer struct {
	t   *testing.T
	h   http.Handler
	r   *siteRetriever
	key string
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	r := &siteRetriever{fail: map[string]error{}}
	sc := scraper.NewWithRetriever(r, []string{engine.NameDirectFetch}, cfg.Scraper, nil)
	cc := cache.New(100)
	t.Cleanup(cc.Stop)
	return &testServer{t: t, h: NewRouter(sc, cfg, cc, time.Now()), r: r}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		req.Header.Set("X-API-Key", s.key)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[models.HealthResponse](t, w).Status)

	w = s.do(http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[models.StatusResponse](t, w)
	assert.Equal(t, []string{engine.NameDirectFetch}, st.Engines)
	assert.Equal(t, "disabled", st.BrowserMode)
	assert.NotZero(t, st.PID)
}

func TestScrape(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodPost, "/api/v1/scrape", map[string]any{"url": "https://example.com/guide"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.ScrapeResponse](t, w)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Content, "readable guide text")
	assert.Equal(t, engine.NameDirectFetch, resp.EngineUsed)
	assert.Equal(t, "https://example.com/guide", resp.FinalURL)
	assert.Empty(t, resp.CacheStatus)
}

func TestScrapeCache(t *testing.T) {
	s := newTestServer(t, testConfig())
	body := map[string]any{"url": "https://example.com/guide", "max_age": 60000}

	first := decode[models.ScrapeResponse](t, s.do(http.MethodPost, "/api/v1/scrape", body))
	second := decode[models.ScrapeResponse](t, s.do(http.MethodPost, "/api/v1/scrape", body))
	assert.Equal(t, "miss", first.CacheStatus)
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, s.r.calls)

	// A different format is a different entry.
	body["output_format"] = "text"
	third := decode[models.ScrapeResponse](t, s.do(http.MethodPost, "/api/v1/scrape", body))
	assert.Equal(t, "miss", third.CacheStatus)
	assert.Equal(t, 2, s.r.calls)
}

func TestScrapeErrors(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.r.fail["https://example.com/down"] = &engine.AllEnginesFailedError{
		Attempted: []string{engine.NameDirectFetch},
		Errors: map[string]*engine.ClassifiedError{
			engine.NameDirectFetch: engine.NewHTTPStatus(engine.NameDirectFetch, 503),
		},
	}
	s.r.fail["https://example.com/slow"] = &engine.AllEnginesFailedError{
		Attempted: []string{engine.NameDirectFetch},
		Errors: map[string]*engine.ClassifiedError{
			engine.NameDirectFetch: engine.NewTimeout(engine.NameDirectFetch, time.Second, context.DeadlineExceeded),
		},
	}

	s.r.fail["https://example.com/thin"] = &engine.AllEnginesFailedError{
		Attempted: []string{engine.NameDirectFetch, engine.NameBrowserAutomation},
		Errors: map[string]*engine.ClassifiedError{
			engine.NameDirectFetch:       engine.NewHTTPStatus(engine.NameDirectFetch, 403),
			engine.NameBrowserAutomation: engine.NewInsufficientContent(engine.NameBrowserAutomation, 12, 100),
		},
	}
	s.r.fail["https://example.com/busy"] = &engine.AllEnginesFailedError{
		Attempted: []string{engine.NameBrowserAutomation},
		Errors: map[string]*engine.ClassifiedError{
			engine.NameBrowserAutomation: engine.NewEngineUnavailable(engine.NameBrowserAutomation, "queue full", pool.ErrQueueFull),
		},
	}

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing url", map[string]any{}, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"bad format", map[string]any{"url": "https://example.com/", "output_format": "pdf"}, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"bad engine", map[string]any{"url": "https://example.com/", "force_engine": "curl"}, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"engines failed", map[string]any{"url": "https://example.com/down"}, http.StatusBadGateway, models.ErrCodeEnginesFailed},
		{"timeout", map[string]any{"url": "https://example.com/slow"}, http.StatusGatewayTimeout, models.ErrCodeTimeout},
		{"thin content", map[string]any{"url": "https://example.com/thin"}, http.StatusUnprocessableEntity, models.ErrCodeContent},
		{"pool unavailable", map[string]any{"url": "https://example.com/busy"}, http.StatusServiceUnavailable, models.ErrCodePoolUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/scrape", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[models.ScrapeResponse](t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	w := s.do(http.MethodPost, "/api/v1/scrape", map[string]any{"url": "https://example.com/down"})
	resp := decode[models.ScrapeResponse](t, w)
	assert.Equal(t, []string{engine.NameDirectFetch}, resp.AttemptedEngines)
	assert.Equal(t, "HTTP 503", resp.EngineErrors[engine.NameDirectFetch])
}

func TestBatchScrape(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.r.fail["https://example.com/b"] = &engine.AllEnginesFailedError{
		Attempted: []string{engine.NameDirectFetch},
		Errors: map[string]*engine.ClassifiedError{
			engine.NameDirectFetch: engine.NewHTTPStatus(engine.NameDirectFetch, 404),
		},
	}

	w := s.do(http.MethodPost, "/api/v1/batch/scrape", map[string]any{
		"urls": []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.BatchResponse](t, w)
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.ID, "batch-"))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "https://example.com/a", resp.Results[0].URL)
	assert.False(t, resp.Results[1].Success)
	assert.Equal(t, models.BatchMetadata{Total: 3, Succeeded: 2, Failed: 1, DurationMs: resp.Batch.DurationMs}, resp.Batch)

	w = s.do(http.MethodPost, "/api/v1/batch/scrape", map[string]any{"urls": []string{"not-a-url"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCrawl(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.r.pages = map[string]string{
		"https://example.com/":     `<html><head><title>Home</title></head><body><a href="/docs">docs</a><a href="/privacy">p</a></body></html>`,
		"https://example.com/docs": `<html><head><title>Docs</title></head><body><p>docs</p></body></html>`,
	}

	w := s.do(http.MethodPost, "/api/v1/crawl", map[string]any{"url": "https://example.com/", "max_depth": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.CrawlResponse](t, w)
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.ID, "crawl-"))
	require.Len(t, resp.URLs, 2)
	assert.Equal(t, "Docs", resp.URLs[1].Title)
	assert.Equal(t, 1, resp.URLs[1].Depth)
	assert.Empty(t, resp.Scraped)

	w = s.do(http.MethodPost, "/api/v1/crawl", map[string]any{"url": "https://example.com/", "exclude_patterns": []string{"("}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidInput, decode[models.CrawlResponse](t, w).Error.Code)

	w = s.do(http.MethodPost, "/api/v1/crawl", map[string]any{"url": "https://example.com/", "max_depth": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}}
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil).Code)

	w := s.do(http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.ErrCodeUnauthorized, decode[models.ScrapeResponse](t, w).Error.Code)

	s.key = "wrong"
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/status", nil).Code)

	s.key = "k1"
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/status", nil).Code)

	s.key = ""
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2}
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/status", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/status", nil).Code)
	w := s.do(http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, models.ErrCodeRateLimited, decode[models.ScrapeResponse](t, w).Error.Code)

	// Health is not rate limited.
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil).Code)
}
