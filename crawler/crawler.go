// Package crawler discovers pages breadth-first from a seed URL, staying on
// the seed's site.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/reader/cleaner"
	"github.com/use-agent/reader/simhash"
	"golang.org/x/time/rate"
)

// duplicateThreshold is the SimHash distance at or below which two pages
// count as the same content.
const duplicateThreshold = 3

// Options bounds a crawl.
type Options struct {
	// MaxDepth is the number of link hops followed from the seed. Zero
	// fetches the seed only.
	MaxDepth int

	// MaxPages caps the number of pages returned.
	MaxPages int

	// Delay spaces out page fetches.
	Delay time.Duration

	IncludePatterns []string
	ExcludePatterns []string

	// SkipDuplicates drops pages whose text is a near duplicate of an
	// earlier page, and does not follow their links.
	SkipDuplicates bool
}

// Page is one discovered URL.
type Page struct {
	URL         string
	Title       string
	Description string
	Depth       int
}

// Result is the outcome of a crawl.
type Result struct {
	SeedURL  string
	Pages    []Page
	Skipped  int
	Duration time.Duration
}

// URLs lists the discovered page URLs in discovery order.
func (r *Result) URLs() []string {
	out := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		out[i] = p.URL
	}
	return out
}

// Crawler walks a site through a Fetcher.
type Crawler struct {
	fetcher Fetcher
	opts    Options
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// New validates opts and compiles the URL patterns.
func New(f Fetcher, opts Options) (*Crawler, error) {
	if f == nil {
		return nil, errors.New("crawler: nil fetcher")
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 20
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}

	include, err := compilePatterns(opts.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("crawler: include pattern: %w", err)
	}
	exclude, err := compilePatterns(opts.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("crawler: exclude pattern: %w", err)
	}
	return &Crawler{fetcher: f, opts: opts, include: include, exclude: exclude}, nil
}

type queued struct {
	url   string
	depth int
}

// Crawl runs a breadth-first crawl from seed. Pages that fail to load or stay
// behind a challenge are counted as skipped. Cancelling ctx returns the pages
// found so far together with ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, seed string) (*Result, error) {
	start := time.Now()
	seedURL, err := url.Parse(seed)
	if err != nil || !seedURL.IsAbs() || (seedURL.Scheme != "http" && seedURL.Scheme != "https") {
		return nil, fmt.Errorf("crawler: invalid seed url %q", seed)
	}
	seedURL.Fragment = ""

	result := &Result{SeedURL: seedURL.String()}

	limit := rate.Inf
	if c.opts.Delay > 0 {
		limit = rate.Every(c.opts.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var dupes *simhash.Set
	if c.opts.SkipDuplicates {
		dupes = simhash.NewSet(duplicateThreshold)
	}

	seen := map[string]struct{}{urlKey(seedURL.String()): {}}
	queue := []queued{{url: seedURL.String()}}

	for len(queue) > 0 && len(result.Pages) < c.opts.MaxPages {
		item := queue[0]
		queue = queue[1:]

		if err := limiter.Wait(ctx); err != nil {
			result.Duration = time.Since(start)
			return result, ctx.Err()
		}

		doc, err := c.fetcher.Fetch(ctx, item.url)
		if err != nil {
			if ctx.Err() != nil {
				result.Duration = time.Since(start)
				return result, ctx.Err()
			}
			result.Skipped++
			slog.Warn("crawler: page skipped", "url", item.url, "error", err)
			continue
		}

		if dupes != nil && dupes.Add(bodyText(doc.HTML)) {
			result.Skipped++
			slog.Debug("crawler: near-duplicate page skipped", "url", item.url)
			continue
		}

		meta := cleaner.ExtractPageMeta(doc.HTML)
		title := meta.Title
		if title == "" {
			title = "Untitled"
		}
		result.Pages = append(result.Pages, Page{
			URL:         item.url,
			Title:       title,
			Description: meta.Description,
			Depth:       item.depth,
		})
		slog.Debug("crawler: page discovered", "url", item.url, "depth", item.depth)

		if item.depth >= c.opts.MaxDepth {
			continue
		}
		base := doc.FinalURL
		if base == "" {
			base = item.url
		}
		links := cleaner.ExtractLinks(doc.HTML, base)
		for _, l := range append(links.Internal, links.External...) {
			if !c.admit(l.Href, seedURL) {
				continue
			}
			key := urlKey(l.Href)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			queue = append(queue, queued{url: l.Href, depth: item.depth + 1})
		}
	}

	result.Duration = time.Since(start)
	slog.Info("crawl finished", "seed", seed, "pages", len(result.Pages),
		"skipped", result.Skipped, "duration", result.Duration)
	return result, nil
}

// admit applies the site, content-type and pattern filters to a candidate
// link.
func (c *Crawler) admit(raw string, seed *url.URL) bool {
	u, err := url.Parse(raw)
	if err != nil || !sameSite(u, seed) {
		return false
	}
	if !isContentURL(raw) {
		return false
	}
	if len(c.include) > 0 && !matchesAny(raw, c.include) {
		return false
	}
	return !matchesAny(raw, c.exclude)
}

func bodyText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Find("body").Text()
}
