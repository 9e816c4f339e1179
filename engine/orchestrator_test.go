package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine returns a fixed outcome and counts calls.
type stubEngine struct {
	name      string
	err       error
	html      string
	available bool
	timeout   time.Duration
	block     bool
	calls     atomic.Int32
}

func newStub(name string, err error) *stubEngine {
	return &stubEngine{name: name, err: err, html: "<p>ok</p>", available: true, timeout: time.Second}
}

func (s *stubEngine) Name() string              { return s.name }
func (s *stubEngine) Available() bool           { return s.available }
func (s *stubEngine) MaxTimeout() time.Duration { return s.timeout }

func (s *stubEngine) Scrape(ctx context.Context, req *Request) (*Result, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Result{HTML: s.html, FinalURL: req.URL, StatusCode: 200}, nil
}

// handlerTransport serves every request from h, whatever the host.
type handlerTransport struct{ h http.Handler }

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

func TestCascadePrefix(t *testing.T) {
	retry := NewTimeout("", 0, nil)
	fatal := NewHTTPStatus("", 401)

	tests := []struct {
		name      string
		errs      []error
		wantTried []string
		wantOK    bool
	}{
		{"first succeeds", []error{nil, nil, nil}, []string{"a"}, true},
		{"second succeeds", []error{retry, nil, nil}, []string{"a", "b"}, true},
		{"last succeeds", []error{retry, retry, nil}, []string{"a", "b", "c"}, true},
		{"all fail", []error{retry, retry, retry}, []string{"a", "b", "c"}, false},
		{"fatal stops", []error{retry, fatal, nil}, []string{"a", "b"}, false},
		{"fatal first", []error{fatal, nil, nil}, []string{"a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, c := newStub("a", tt.errs[0]), newStub("b", tt.errs[1]), newStub("c", tt.errs[2])
			o := NewOrchestrator(NewRegistry(a, b, c), Options{Engines: []string{"a", "b", "c"}})

			res, err := o.Scrape(context.Background(), &Request{URL: "https://example.test/"})
			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, tt.wantTried, res.AttemptedEngines)
				assert.Equal(t, tt.wantTried[len(tt.wantTried)-1], res.Engine)
				assert.Len(t, res.EngineErrors, len(tt.wantTried)-1)
			} else {
				var all *AllEnginesFailedError
				require.ErrorAs(t, err, &all)
				assert.Equal(t, tt.wantTried, all.Attempted)
				assert.Len(t, all.Errors, len(tt.wantTried))
			}

			for i, s := range []*stubEngine{a, b, c} {
				wantCalls := 0
				if i < len(tt.wantTried) {
					wantCalls = 1
				}
				assert.EqualValues(t, wantCalls, s.calls.Load(), "engine %s", s.name)
			}
		})
	}
}

func TestEngineOrder(t *testing.T) {
	a, b, c := newStub("a", nil), newStub("b", nil), newStub("c", nil)
	c.available = false
	reg := NewRegistry(a, b, c)

	o := NewOrchestrator(reg, Options{Engines: []string{"a", "missing", "b", "c", "a"}, SkipEngines: []string{"a"}})
	assert.Equal(t, []string{"a", "b"}, o.Engines())

	assert.Equal(t, []string{"b"}, o.engineOrder(&Request{}))
	assert.Equal(t, []string{"a"}, o.engineOrder(&Request{ForceEngine: "a"}))
	assert.Empty(t, o.engineOrder(&Request{ForceEngine: "c"}))
	assert.Empty(t, o.engineOrder(&Request{SkipEngines: []string{"b"}}))

	forced := NewOrchestrator(reg, Options{Engines: []string{"a", "b"}, ForceEngine: "b"})
	assert.Equal(t, []string{"b"}, forced.engineOrder(&Request{}))
	assert.Equal(t, []string{"a"}, forced.engineOrder(&Request{ForceEngine: "a"}))
}

func TestEmptyOrderFails(t *testing.T) {
	a := newStub("a", nil)
	o := NewOrchestrator(NewRegistry(a), Options{Engines: []string{"a"}})

	_, err := o.Scrape(context.Background(), &Request{URL: "https://example.test/", SkipEngines: []string{"a"}})
	var all *AllEnginesFailedError
	require.ErrorAs(t, err, &all)
	assert.Empty(t, all.Attempted)
	assert.Zero(t, a.calls.Load())
}

func TestPerEngineTimeout(t *testing.T) {
	slow := newStub("slow", nil)
	slow.block = true
	slow.timeout = time.Hour
	fast := newStub("fast", nil)
	o := NewOrchestrator(NewRegistry(slow, fast), Options{Engines: []string{"slow", "fast"}})

	start := time.Now()
	res, err := o.Scrape(context.Background(), &Request{URL: "https://example.test/", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "fast", res.Engine)
	require.Contains(t, res.EngineErrors, "slow")
	assert.Equal(t, KindTimeout, res.EngineErrors["slow"].Kind)
}

func TestCallerCancellationFailsEachEngineFast(t *testing.T) {
	a, b := newStub("a", nil), newStub("b", nil)
	a.block, b.block = true, true
	o := NewOrchestrator(NewRegistry(a, b), Options{Engines: []string{"a", "b"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Scrape(ctx, &Request{URL: "https://example.test/"})

	var all *AllEnginesFailedError
	require.ErrorAs(t, err, &all)
	assert.True(t, all.AllTimedOut())
	assert.Equal(t, []string{"a", "b"}, all.Attempted)
}

func TestUnclassifiedErrorFallsBack(t *testing.T) {
	a, b := newStub("a", errors.New("connection reset")), newStub("b", nil)
	o := NewOrchestrator(NewRegistry(a, b), Options{Engines: []string{"a", "b"}})

	res, err := o.Scrape(context.Background(), &Request{URL: "https://example.test/"})
	require.NoError(t, err)
	assert.Equal(t, KindGeneric, res.EngineErrors["a"].Kind)
}

func TestRateLimitedThenFingerprintedSucceeds(t *testing.T) {
	article := "<html><body><article><p>" + strings.Repeat("readable words ", 34) + "</p></article></body></html>"
	require.GreaterOrEqual(t, len(extractText(article)), 500)

	direct := &DirectFetchEngine{newNetEngine(NameDirectFetch, handlerTransport{http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		})}, directFetchMaxTimeout, 0)}

	var gotUA atomic.Value
	fingerprinted := &FingerprintedClientEngine{newNetEngine(NameFingerprintedClient, handlerTransport{http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotUA.Store(r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(article))
		})}, fingerprintedMaxTimeout, 0)}

	o := NewOrchestrator(NewRegistry(direct, fingerprinted, NewBrowserEngine(nil, BrowserOptions{})), Options{})
	assert.Equal(t, []string{NameDirectFetch, NameFingerprintedClient}, o.Engines())

	res, err := o.Scrape(context.Background(), &Request{
		URL:     "https://example.test/a",
		Headers: map[string]string{"User-Agent": "reader-test"},
	})
	require.NoError(t, err)

	assert.Equal(t, NameFingerprintedClient, res.Engine)
	assert.Equal(t, []string{NameDirectFetch, NameFingerprintedClient}, res.AttemptedEngines)
	require.Len(t, res.EngineErrors, 1)
	ce := res.EngineErrors[NameDirectFetch]
	assert.Equal(t, KindHTTPStatus, ce.Kind)
	assert.Equal(t, 429, ce.StatusCode)
	assert.Equal(t, "https://example.test/a", res.FinalURL)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "reader-test", gotUA.Load())
}
