package cleaner

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// alwaysRemove never carries readable content.
var alwaysRemove = []string{
	"script", "style", "noscript", "link[rel='stylesheet']",
	"[hidden]", "[aria-hidden='true']",
	"[style*='display: none']", "[style*='display:none']",
	"[style*='visibility: hidden']", "[style*='visibility:hidden']",
	"svg[aria-hidden='true']", "svg.icon", "svg[class*='icon']",
	"template", "meta",
	"iframe", "canvas", "object", "embed",
	"form", "input", "select", "textarea", "button",
}

var overlaySelectors = []string{
	"[class*='modal']", "[class*='popup']", "[class*='overlay']", "[class*='dialog']",
	"[role='dialog']", "[role='alertdialog']",
	"[class*='cookie']", "[class*='consent']", "[class*='gdpr']",
	"[class*='privacy-banner']", "[class*='notification-bar']",
	"[id*='cookie']", "[id*='consent']", "[id*='gdpr']",
	"[style*='position: fixed']", "[style*='position:fixed']",
	"[style*='position: sticky']", "[style*='position:sticky']",
}

var adSelectors = []string{
	"ins.adsbygoogle", ".google-ad", ".adsense",
	"[data-ad]", "[data-ads]", "[data-ad-slot]", "[data-ad-client]",
	".ad-container", ".ad-wrapper", ".advertisement", ".sponsored-content",
	"img[width='1'][height='1']",
	"img[src*='pixel']", "img[src*='tracking']", "img[src*='analytics']",
}

var navigationSelectors = []string{
	"header", "footer", "nav", "aside",
	".header", ".top", ".navbar", "#header",
	".footer", ".bottom", "#footer",
	".sidebar", ".side", ".aside", "#sidebar",
	".modal", ".popup", "#modal", ".overlay",
	".ad", ".ads", ".advert", "#ad",
	".lang-selector", ".language", "#language-selector",
	".social", ".social-media", ".social-links", "#social",
	".menu", ".navigation", "#nav",
	".breadcrumbs", "#breadcrumbs",
	".share", "#share",
	".widget", "#widget",
	".cookie", "#cookie",
}

// contentSelectors mark likely main-content containers. Navigation removal
// never touches them or their ancestors.
var contentSelectors = []string{
	"#main", "#content", "#main-content", "#article", "#post", "#page-content",
	"main", "article", "[role='main']",
	".main-content", ".content", ".post-content", ".article-content",
	".entry-content", ".page-content", ".article-body", ".post-body",
	".story-content", ".blog-content",
}

var inlineImageStyleRe = regexp.MustCompile(`(?i)background(-image)?:\s*url\([^)]*data:image[^)]*\)[^;]*;?`)

// FilterOptions selects the pre-conversion filters.
type FilterOptions struct {
	IncludeTags        []string
	ExcludeTags        []string
	OnlyMainContent    bool
	RemoveBase64Images bool
	RemoveAds          bool
}

// FilterContent strips non-content markup from rawHTML and rewrites relative
// src/href attributes against baseURL.
//
// Processing order:
//  1. Remove scripts, hidden elements, embeds, overlays (and ads).
//  2. Remove elements matching ExcludeTags.
//  3. With OnlyMainContent, remove navigation chrome that does not hold content.
//  4. Keep only elements matching IncludeTags, when any match.
//  5. Drop inline base64 images and HTML comments.
//
// Unparseable input is returned unchanged.
func FilterContent(rawHTML, baseURL string, opts FilterOptions) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	removeAll(doc, alwaysRemove)
	removeAll(doc, overlaySelectors)
	if opts.RemoveAds {
		removeAll(doc, adSelectors)
	}
	removeAll(doc, opts.ExcludeTags)

	if opts.OnlyMainContent {
		removeUnprotected(doc, navigationSelectors, strings.Join(contentSelectors, ", "))
	}

	if len(opts.IncludeTags) > 0 {
		var buf strings.Builder
		for _, sel := range opts.IncludeTags {
			doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				if h, err := goquery.OuterHtml(s); err == nil {
					buf.WriteString(h)
				}
			})
		}
		if buf.Len() > 0 {
			doc.Find("body").SetHtml(buf.String())
		}
	}

	if opts.RemoveBase64Images {
		removeBase64Images(doc)
	}
	for _, n := range doc.Nodes {
		removeComments(n)
	}
	if base, err := url.Parse(baseURL); err == nil && base.IsAbs() {
		absolutize(doc, base)
	}

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

// removeAll drops every element matching any selector. Invalid selectors
// match nothing.
func removeAll(doc *goquery.Document, selectors []string) {
	for _, sel := range selectors {
		doc.Find(sel).Remove()
	}
}

func removeUnprotected(doc *goquery.Document, selectors []string, protected string) {
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if s.Is(protected) || s.Find(protected).Length() > 0 {
				return
			}
			s.Remove()
		})
	}
}

func removeBase64Images(doc *goquery.Document) {
	doc.Find("img[src^='data:']").Remove()
	doc.Find("source[src^='data:'], source[srcset*='data:']").Remove()
	doc.Find("[style*='data:image']").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		cleaned := inlineImageStyleRe.ReplaceAllString(style, "")
		if strings.TrimSpace(cleaned) == "" {
			s.RemoveAttr("style")
			return
		}
		s.SetAttr("style", cleaned)
	})
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// absolutize resolves relative src and href values. Fragments and
// non-navigational schemes are left alone.
func absolutize(doc *goquery.Document, base *url.URL) {
	doc.Find("[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" || isAbsoluteRef(src) || strings.HasPrefix(src, "data:") {
			return
		}
		if u, err := base.Parse(src); err == nil {
			s.SetAttr("src", u.String())
		}
	})
	doc.Find("[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || isAbsoluteRef(href) {
			return
		}
		for _, p := range []string{"#", "mailto:", "tel:", "javascript:"} {
			if strings.HasPrefix(href, p) {
				return
			}
		}
		if u, err := base.Parse(href); err == nil {
			s.SetAttr("href", u.String())
		}
	})
}

func isAbsoluteRef(ref string) bool {
	return strings.HasPrefix(ref, "http") || strings.HasPrefix(ref, "//")
}
