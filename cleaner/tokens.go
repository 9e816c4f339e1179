package cleaner

import "unicode/utf8"

// EstimateTokens approximates a token count as runes/3, a middle ground
// between English (~4 chars/token) and CJK (~1.5 chars/token) text.
// Non-empty input counts as at least one token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(n/3, 1)
}
