package cleaner

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paragraph = "Readers should see this paragraph in full because it carries the actual story of the page. "

var articlePage = `<!DOCTYPE html><html lang="en"><head>
<title>Field Notes</title>
<meta name="description" content="Notes from the field">
<meta property="og:image" content="https://example.com/cover.png">
<script>var tracking = true;</script>
</head><body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<div class="cookie-banner">We use cookies</div>
<article>
<h1>Field Notes</h1>
<p>` + strings.Repeat(paragraph, 3) + `</p>
<p>Read the <a href="/docs/intro">intro</a> first.</p>
<p>` + strings.Repeat(paragraph, 2) + `</p>
<img src="data:image/png;base64,AAAA" alt="inline">
</article>
<!-- build 1234 -->
<footer>Copyright footer text</footer>
</body></html>`

func TestFilterContentRemovesNoise(t *testing.T) {
	out := FilterContent(articlePage, "https://example.com/guide/", FilterOptions{
		OnlyMainContent:    true,
		RemoveBase64Images: true,
		RemoveAds:          true,
	})

	for _, gone := range []string{"<script", "cookie-banner", "data:image", "build 1234", "<nav", "Copyright footer"} {
		assert.NotContains(t, out, gone)
	}
	assert.Contains(t, out, "<article>")
	assert.Contains(t, out, `href="https://example.com/docs/intro"`)
}

func TestFilterContentKeepsBase64WhenAsked(t *testing.T) {
	out := FilterContent(articlePage, "https://example.com/", FilterOptions{})
	assert.Contains(t, out, "data:image/png")
	assert.Contains(t, out, "<nav>")
}

func TestFilterContentTags(t *testing.T) {
	page := `<html><body>
<div id="keep"><p>Kept text</p><span class="promo">Buy now</span></div>
<div id="other"><p>Other text</p></div>
</body></html>`

	t.Run("include", func(t *testing.T) {
		out := FilterContent(page, "", FilterOptions{IncludeTags: []string{"#keep"}})
		assert.Contains(t, out, "Kept text")
		assert.NotContains(t, out, "Other text")
	})
	t.Run("exclude", func(t *testing.T) {
		out := FilterContent(page, "", FilterOptions{ExcludeTags: []string{".promo"}})
		assert.NotContains(t, out, "Buy now")
		assert.Contains(t, out, "Other text")
	})
	t.Run("include without match keeps document", func(t *testing.T) {
		out := FilterContent(page, "", FilterOptions{IncludeTags: []string{"#missing"}})
		assert.Contains(t, out, "Kept text")
		assert.Contains(t, out, "Other text")
	})
	t.Run("invalid selector matches nothing", func(t *testing.T) {
		out := FilterContent(page, "", FilterOptions{ExcludeTags: []string{"[[["}})
		assert.Contains(t, out, "Buy now")
	})
}

func TestNavigationRemovalSparesContent(t *testing.T) {
	page := `<html><body><div class="sidebar"><div class="content"><p>Protected body</p></div></div>
<div class="menu"><a href="/x">x</a></div></body></html>`
	out := FilterContent(page, "", FilterOptions{OnlyMainContent: true})
	assert.Contains(t, out, "Protected body")
	assert.NotContains(t, out, `class="menu"`)
}

func TestFindMainContent(t *testing.T) {
	links := strings.Repeat(`<li><a href="/p">Page link</a></li>`, 10)
	page := `<html><body><div id="links"><ul>` + links + `</ul></div>
<main><p>` + strings.Repeat(paragraph, 2) + `</p></main></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	sel := findMainContent(doc)
	require.NotNil(t, sel)
	assert.Equal(t, "main", goquery.NodeName(sel))

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(`<html><body><p>short</p></body></html>`))
	require.NoError(t, err)
	assert.Nil(t, findMainContent(doc))
}

func TestCleanFormats(t *testing.T) {
	c := NewCleaner()

	t.Run("markdown", func(t *testing.T) {
		resp, err := c.Clean(articlePage, "https://example.com/guide/", Options{Format: FormatMarkdown, OnlyMainContent: true, RemoveBase64Images: true})
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, FormatMarkdown, resp.Format)
		assert.Contains(t, resp.Content, "Readers should see this paragraph in full")
		assert.Contains(t, resp.Content, "(https://example.com/docs/intro)")
		assert.NotContains(t, resp.Content, "We use cookies")
		assert.NotContains(t, resp.Content, "tracking")
		assert.NotEmpty(t, resp.Metadata.Title)
		assert.Equal(t, "https://example.com/cover.png", resp.Metadata.Image)
		assert.Equal(t, "https://example.com/guide/", resp.Metadata.SourceURL)
		assert.Less(t, resp.Tokens.CleanedEstimate, resp.Tokens.OriginalEstimate)
		assert.Greater(t, resp.Tokens.SavingsPercent, 0.0)
	})

	t.Run("citations", func(t *testing.T) {
		resp, err := c.Clean(articlePage, "https://example.com/guide/", Options{Format: FormatMarkdown, OnlyMainContent: true, Citations: true})
		require.NoError(t, err)
		assert.Contains(t, resp.Content, "[intro][1]")
		assert.Contains(t, resp.Content, "[1]: https://example.com/docs/intro")
	})

	t.Run("text", func(t *testing.T) {
		resp, err := c.Clean(articlePage, "https://example.com/guide/", Options{Format: FormatText, OnlyMainContent: true})
		require.NoError(t, err)
		assert.Contains(t, resp.Content, "Readers should see this paragraph in full")
		assert.NotContains(t, resp.Content, "<p>")
	})

	t.Run("html", func(t *testing.T) {
		resp, err := c.Clean(articlePage, "https://example.com/guide/", Options{Format: FormatHTML})
		require.NoError(t, err)
		assert.Contains(t, resp.Content, "<p>")
		assert.NotContains(t, resp.Content, "<script")
	})

	t.Run("raw", func(t *testing.T) {
		resp, err := c.Clean(articlePage, "https://example.com/guide/", Options{Format: FormatRaw})
		require.NoError(t, err)
		assert.Equal(t, articlePage, resp.Content)
		assert.Equal(t, "Field Notes", resp.Metadata.Title)
		assert.Equal(t, "Notes from the field", resp.Metadata.Description)
		assert.Equal(t, "en", resp.Metadata.Language)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := c.Clean(articlePage, "https://example.com/", Options{Format: "pdf"})
		assert.Error(t, err)
	})
}

func TestExtractLinks(t *testing.T) {
	page := `<html><body>
<a href="/b">B</a><a href="c#frag">C</a><a href="/b">B again</a>
<a href="https://other.test/x">Other</a>
<a href="mailto:me@example.com">Mail</a><a href="#top">Top</a>
</body></html>`

	links := ExtractLinks(page, "https://example.com/a/")
	require.Len(t, links.Internal, 2)
	assert.Equal(t, "https://example.com/b", links.Internal[0].Href)
	assert.Equal(t, "B", links.Internal[0].Text)
	assert.Equal(t, "https://example.com/a/c", links.Internal[1].Href)
	require.Len(t, links.External, 1)
	assert.Equal(t, "https://other.test/x", links.External[0].Href)
}

func TestExtractPageMetaOpenGraphFallback(t *testing.T) {
	m := ExtractPageMeta(`<html><head>
<meta property="og:title" content="OG title">
<meta property="og:description" content="OG description">
<meta property="og:site_name" content="Example">
</head><body></body></html>`)
	assert.Equal(t, "OG title", m.Title)
	assert.Equal(t, "OG description", m.Description)
	assert.Equal(t, "Example", m.SiteName)
}

func TestConvertToCitations(t *testing.T) {
	in := "See [Go](https://go.dev) and [again](https://go.dev) and [X](https://x.test) ![img](https://i.test/a.png)"
	want := "See [Go][1] and [again][1] and [X][2] ![img](https://i.test/a.png)\n\n---\n[1]: https://go.dev\n[2]: https://x.test"
	assert.Equal(t, want, ConvertToCitations(in))
	assert.Equal(t, "no links", ConvertToCitations("no links"))
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"ab", 1},
		{"abcdef", 2},
		{"你好世界你好", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.in), tt.in)
	}
}
