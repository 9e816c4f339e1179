package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/reader/models"
)

// ExtractLinks parses the raw HTML and separates links into internal and external
// based on whether their host matches the source URL's host. Only http(s)
// links are returned, resolved and without fragments, each once.
func ExtractLinks(rawHTML string, sourceURL string) models.LinksResult {
	result := models.LinksResult{
		Internal: []models.Link{},
		External: []models.Link{},
	}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return result
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return result
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		resolved.Fragment = ""

		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}

		link := models.Link{Href: abs, Text: collapseSpace(s.Text())}
		if strings.EqualFold(resolved.Host, base.Host) {
			result.Internal = append(result.Internal, link)
		} else {
			result.External = append(result.External, link)
		}
	})

	return result
}

// PageMeta holds the document-level tags that readability does not report.
type PageMeta struct {
	Title       string
	Description string
	SiteName    string
	Image       string
	Language    string
}

// ExtractPageMeta reads <title>, the meta description, html[lang] and the
// Open Graph tags. Open Graph values fill in for missing plain ones.
func ExtractPageMeta(rawHTML string) PageMeta {
	var m PageMeta

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return m
	}

	m.Title = collapseSpace(doc.Find("title").First().Text())
	m.Language, _ = doc.Find("html").Attr("lang")

	var og PageMeta
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		name, _ := s.Attr("name")
		prop, _ := s.Attr("property")
		switch {
		case strings.EqualFold(name, "description"):
			m.Description = content
		case prop == "og:title":
			og.Title = content
		case prop == "og:description":
			og.Description = content
		case prop == "og:site_name":
			og.SiteName = content
		case prop == "og:image":
			og.Image = content
		}
	})

	if m.Title == "" {
		m.Title = og.Title
	}
	if m.Description == "" {
		m.Description = og.Description
	}
	m.SiteName = og.SiteName
	m.Image = og.Image
	return m
}
