package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// siteFetcher serves canned pages and records what was fetched.
type siteFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *siteFetcher) Fetch(ctx context.Context, u string) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, u)
	html, ok := f.pages[u]
	if !ok {
		return nil, errors.New("not found")
	}
	return &Document{HTML: html, FinalURL: u}, nil
}

func page(title, body string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><p>%s</p>", title, body)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func testSite() *siteFetcher {
	return &siteFetcher{pages: map[string]string{
		"https://example.com/": page("Home", "welcome to the home page",
			"/a", "/b", "https://docs.example.com/c", "https://other.test/x",
			"/privacy", "/report.pdf", "/a#section", "/a/"),
		"https://example.com/a":      page("A", "all about the letter a", "/a/deep"),
		"https://docs.example.com/c": page("", "documentation for c"),
		"https://example.com/a/deep": page("Deep", "deep page"),
	}}
}

func TestCrawlBreadthFirst(t *testing.T) {
	f := testSite()
	c, err := New(f, Options{MaxDepth: 1, MaxPages: 10})
	require.NoError(t, err)

	res, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/", "https://example.com/a", "https://docs.example.com/c"}, res.URLs())
	assert.Equal(t, 1, res.Skipped, "/b fails to load")
	assert.Equal(t, []string{
		"https://example.com/", "https://example.com/a", "https://example.com/b", "https://docs.example.com/c",
	}, f.fetched)

	assert.Equal(t, "Home", res.Pages[0].Title)
	assert.Equal(t, 0, res.Pages[0].Depth)
	assert.Equal(t, 1, res.Pages[1].Depth)
	assert.Equal(t, "Untitled", res.Pages[2].Title)
}

func TestCrawlLimits(t *testing.T) {
	t.Run("max pages", func(t *testing.T) {
		c, err := New(testSite(), Options{MaxDepth: 2, MaxPages: 2})
		require.NoError(t, err)
		res, err := c.Crawl(context.Background(), "https://example.com/")
		require.NoError(t, err)
		assert.Len(t, res.Pages, 2)
	})
	t.Run("depth zero", func(t *testing.T) {
		c, err := New(testSite(), Options{MaxDepth: 0, MaxPages: 10})
		require.NoError(t, err)
		res, err := c.Crawl(context.Background(), "https://example.com/")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/"}, res.URLs())
	})
	t.Run("depth two", func(t *testing.T) {
		c, err := New(testSite(), Options{MaxDepth: 2, MaxPages: 10})
		require.NoError(t, err)
		res, err := c.Crawl(context.Background(), "https://example.com/")
		require.NoError(t, err)
		assert.Contains(t, res.URLs(), "https://example.com/a/deep")
	})
}

func TestCrawlPatterns(t *testing.T) {
	f := testSite()
	c, err := New(f, Options{MaxDepth: 1, MaxPages: 10, ExcludePatterns: []string{`/b$`, `docs\.`}})
	require.NoError(t, err)
	res, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/", "https://example.com/a"}, res.URLs())
	assert.Zero(t, res.Skipped)

	c, err = New(testSite(), Options{MaxDepth: 1, MaxPages: 10, IncludePatterns: []string{`DOCS`}})
	require.NoError(t, err)
	res, err = c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/", "https://docs.example.com/c"}, res.URLs())

	_, err = New(f, Options{IncludePatterns: []string{"("}})
	assert.Error(t, err)
}

func TestCrawlSkipsDuplicates(t *testing.T) {
	body := strings.Repeat("identical template text repeated on every page ", 10)
	f := &siteFetcher{pages: map[string]string{
		"https://example.com/":       page("Home", body, "/copy", "/unique"),
		"https://example.com/copy":   page("Copy", body, "/copy", "/unique"),
		"https://example.com/unique": page("Unique", "a page about something else entirely"),
	}}
	c, err := New(f, Options{MaxDepth: 1, MaxPages: 10, SkipDuplicates: true})
	require.NoError(t, err)
	res, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/", "https://example.com/unique"}, res.URLs())
	assert.Equal(t, 1, res.Skipped)
}

func TestCrawlDelay(t *testing.T) {
	c, err := New(testSite(), Options{MaxDepth: 1, MaxPages: 3, Delay: 30 * time.Millisecond})
	require.NoError(t, err)
	start := time.Now()
	res, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, res.Pages, 3)
	// Four fetches, three of them waited for.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestCrawlCancelled(t *testing.T) {
	c, err := New(testSite(), Options{MaxDepth: 1, MaxPages: 10})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := c.Crawl(ctx, "https://example.com/")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Pages)
}

func TestCrawlInvalidSeed(t *testing.T) {
	c, err := New(testSite(), Options{})
	require.NoError(t, err)
	for _, seed := range []string{"", "/relative", "ftp://example.com/", "://bad"} {
		_, err := c.Crawl(context.Background(), seed)
		assert.Error(t, err, seed)
	}
}

func TestURLKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://WWW.Example.com:443/Docs/index.html?x=1#y", "https://example.com/docs"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/", "https://example.com/"},
		{"http://example.com:8080/a/", "http://example.com:8080/a"},
		{"http://example.com:80/a", "http://example.com/a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, urlKey(tt.in), tt.in)
	}
}

func TestIsContentURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/blog/post-1", true},
		{"https://example.com/privacy", false},
		{"https://example.com/terms-of-service", false},
		{"https://example.com/contact", false},
		{"https://example.com/account/settings", false},
		{"https://example.com/static/app.css", false},
		{"https://example.com/report.PDF", false},
		{"https://example.com/image.png?v=2", false},
		{"https://example.com/returns-and-more/guide", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isContentURL(tt.in), tt.in)
	}
}

func TestSameSite(t *testing.T) {
	parse := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}
	seed := parse("https://www.example.co.uk/")
	assert.True(t, sameSite(parse("https://docs.example.co.uk/x"), seed))
	assert.False(t, sameSite(parse("https://other.co.uk/x"), seed))
	assert.True(t, sameSite(parse("http://127.0.0.1:9000/a"), parse("http://127.0.0.1:9000/")))
}
