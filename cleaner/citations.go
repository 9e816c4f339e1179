package cleaner

import (
	"fmt"
	"regexp"
	"strings"
)

// inlineLinkRe matches Markdown inline links and images: [text](url).
// A trailing title ("...") inside the parentheses is kept out of the URL.
var inlineLinkRe = regexp.MustCompile(`(!?)\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)

// ConvertToCitations rewrites inline links as numbered references and
// appends the reference list:
//
//	See [Go](https://go.dev) → See [Go][1] ... [1]: https://go.dev
//
// Images stay inline. A URL seen twice keeps its first number.
func ConvertToCitations(markdown string) string {
	numbers := make(map[string]int)
	var refs []string

	out := inlineLinkRe.ReplaceAllStringFunc(markdown, func(match string) string {
		m := inlineLinkRe.FindStringSubmatch(match)
		if m[1] == "!" {
			return match
		}
		text, target := m[2], m[3]

		n, ok := numbers[target]
		if !ok {
			n = len(numbers) + 1
			numbers[target] = n
			refs = append(refs, fmt.Sprintf("[%d]: %s", n, target))
		}
		return fmt.Sprintf("[%s][%d]", text, n)
	})

	if len(refs) == 0 {
		return markdown
	}
	return out + "\n\n---\n" + strings.Join(refs, "\n")
}
