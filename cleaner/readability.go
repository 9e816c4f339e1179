package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the minimum text length (in characters) for
// readability output to be considered valid.
const minContentLength = 50

// extraction is the outcome of the main-content stage.
type extraction struct {
	HTML     string
	Text     string
	Title    string
	Byline   string
	Excerpt  string
	SiteName string
	Language string
}

// extractMainContent runs the Mozilla Readability algorithm on filtered HTML.
// When readability errors or yields too little text, the heuristic
// main-content finder picks a container instead, and failing that the whole
// body is kept. Readability metadata is kept whenever it was produced.
func extractMainContent(filtered, sourceURL string) extraction {
	var ex extraction

	if parsedURL, err := nurl.Parse(sourceURL); err != nil {
		slog.Warn("readability: invalid source URL", "url", sourceURL, "error", err)
	} else if article, err := readability.FromReader(strings.NewReader(filtered), parsedURL); err != nil {
		slog.Warn("readability: extraction failed", "url", sourceURL, "error", err)
	} else {
		ex = extraction{
			HTML:     article.Content,
			Text:     strings.TrimSpace(article.TextContent),
			Title:    article.Title,
			Byline:   article.Byline,
			Excerpt:  article.Excerpt,
			SiteName: article.SiteName,
			Language: article.Language,
		}
		if len(ex.Text) >= minContentLength {
			return ex
		}
		slog.Debug("readability: extracted content too short", "url", sourceURL, "length", len(ex.Text))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(filtered))
	if err != nil {
		ex.HTML, ex.Text = filtered, filtered
		return ex
	}
	sel := findMainContent(doc)
	if sel == nil {
		sel = doc.Find("body")
	}
	if h, err := goquery.OuterHtml(sel); err == nil && sel.Length() > 0 {
		ex.HTML = h
	} else {
		ex.HTML = filtered
	}
	ex.Text = collapseSpace(sel.Text())
	return ex
}

// wholeDocument skips main-content detection.
func wholeDocument(filtered string) extraction {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(filtered))
	if err != nil {
		return extraction{HTML: filtered, Text: filtered}
	}
	body := doc.Find("body")
	h, err := body.Html()
	if err != nil {
		h = filtered
	}
	return extraction{HTML: h, Text: collapseSpace(body.Text())}
}

// collapseSpace squeezes runs of whitespace inside each line and drops blank
// lines.
func collapseSpace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			lines = append(lines, strings.Join(f, " "))
		}
	}
	return strings.Join(lines, "\n")
}
