package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var indexFiles = []string{"index.html", "index.htm", "default.html", "default.htm", "index.php"}

// urlKey normalises u for visited-set comparison: fragment and query are
// dropped, scheme and host lower-cased, "www." and default ports removed,
// index documents and trailing slashes trimmed.
func urlKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	u.Fragment = ""
	u.RawQuery = ""
	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	if u.Path == "" {
		u.Path = "/"
	}

	for _, f := range indexFiles {
		if strings.HasSuffix(u.Path, "/"+f) {
			u.Path = strings.TrimSuffix(u.Path, f)
			break
		}
	}

	key := strings.ToLower(u.String())
	if u.Path != "/" && u.Path != "" {
		key = strings.TrimSuffix(key, "/")
	}
	return key
}

// registrableDomain returns the eTLD+1 of host, or host itself when it has
// none (IP addresses, localhost).
func registrableDomain(host string) string {
	host = strings.ToLower(host)
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

func sameSite(a, b *url.URL) bool {
	if strings.EqualFold(a.Hostname(), b.Hostname()) {
		return true
	}
	return registrableDomain(a.Hostname()) == registrableDomain(b.Hostname())
}

var nonContentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/(privacy|terms|tos|legal|cookie|gdpr|disclaimer|imprint|impressum)\b`),
	regexp.MustCompile(`(?i)/(privacy-policy|terms-of-service|terms-of-use|terms-and-conditions)\b`),
	regexp.MustCompile(`(?i)/(cookie-policy|data-protection|acceptable-use|user-agreement)\b`),
	regexp.MustCompile(`(?i)/(refund|cancellation|shipping|return)-?(policy)?\b`),
	regexp.MustCompile(`(?i)/(contact|support|help|faq|feedback)/?$`),
	regexp.MustCompile(`(?i)/(about-us|careers|jobs|press|investors|team)/?$`),
	regexp.MustCompile(`(?i)/(admin|login|auth|account|dashboard|profile|settings)/`),
	regexp.MustCompile(`(?i)/(cart|checkout|payment|subscription|wishlist)/`),
	regexp.MustCompile(`(?i)/(uploads|assets|files|static|media|resources)/`),
	regexp.MustCompile(`(?i)/(api|graphql|rest|webhook)/`),
}

var skipExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".zip", ".exe",
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".mp4", ".mp3", ".css", ".js",
}

// isContentURL filters out legal, account, asset and download URLs.
func isContentURL(raw string) bool {
	lower := strings.ToLower(raw)
	for _, re := range nonContentPatterns {
		if re.MatchString(lower) {
			return false
		}
	}
	path := lower
	if u, err := url.Parse(lower); err == nil {
		path = u.Path
	}
	for _, ext := range skipExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}

// compilePatterns compiles case-insensitive regular expressions.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func matchesAny(s string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
