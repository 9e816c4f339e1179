package cleaner

import (
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxLinkDensity is the anchor-text ratio above which a candidate is treated
// as navigation.
const maxLinkDensity = 0.4

var (
	positiveClassIDRe = regexp.MustCompile(`(?i)article|content|post|body|main|entry`)
	negativeClassIDRe = regexp.MustCompile(`(?i)comment|sidebar|footer|nav|menu|header|widget|ad`)
)

// findMainContent locates the element most likely to hold the page body.
// Semantic containers win when they carry enough text; otherwise every
// div/section/article is scored. Returns nil when nothing qualifies.
func findMainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"main", "[role='main']"} {
		if s := doc.Find(sel).First(); validContent(s) && linkDensity(s) < maxLinkDensity {
			return s
		}
	}

	if articles := doc.Find("article"); articles.Length() == 1 && validContent(articles) {
		return articles
	}

	for _, sel := range contentSelectors {
		s := doc.Find(sel).First()
		if validContent(s) && linkDensity(s) < maxLinkDensity {
			return s
		}
	}

	var (
		best      *goquery.Selection
		bestScore float64
	)
	doc.Find("div, section, article").Each(func(_ int, s *goquery.Selection) {
		if len(strings.TrimSpace(s.Text())) < 200 {
			return
		}
		if score := contentScore(s); score > bestScore {
			best, bestScore = s, score
		}
	})
	if best != nil && bestScore > 20 {
		return best
	}
	return nil
}

func validContent(s *goquery.Selection) bool {
	if s.Length() == 0 {
		return false
	}
	if len(strings.TrimSpace(s.Text())) < 100 {
		return false
	}
	return !looksLikeNavigation(s)
}

// linkDensity is the share of text inside anchors. Empty elements count as
// all links.
func linkDensity(s *goquery.Selection) float64 {
	textLen := len(strings.TrimSpace(s.Text()))
	if textLen == 0 {
		return 1
	}
	linkLen := 0
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkLen += len(strings.TrimSpace(a.Text()))
	})
	return float64(linkLen) / float64(textLen)
}

func looksLikeNavigation(s *goquery.Selection) bool {
	if linkDensity(s) > 0.5 {
		return true
	}
	items := s.Find("li").Length()
	links := s.Find("a").Length()
	return items > 5 && float64(links) > float64(items)*0.8
}

func contentScore(s *goquery.Selection) float64 {
	textLen := float64(len(strings.TrimSpace(s.Text())))

	score := math.Min(textLen/100, 50)
	score += float64(s.Find("p").Length()) * 3
	score += float64(s.Find("h1, h2, h3, h4, h5, h6").Length()) * 2
	score += float64(s.Find("img").Length())
	score -= float64(s.Find("a").Length()) * 0.5
	score -= float64(s.Find("li").Length()) * 0.2

	switch ld := linkDensity(s); {
	case ld > 0.5:
		score -= 30
	case ld > 0.3:
		score -= 15
	}

	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	classID := class + " " + id
	if positiveClassIDRe.MatchString(classID) {
		score += 25
	}
	if negativeClassIDRe.MatchString(classID) {
		score -= 25
	}
	return score
}
