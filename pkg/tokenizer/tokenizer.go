package tokenizer

import (
	"strings"
	"unicode"
)

// CountTokens provides a rough token count estimate.
// Roughly 4 tokens for every 3 whitespace separated words.
func CountTokens(text string) int {
	words := strings.Fields(text)
	return max(len(words)*4/3, 1)
}

// TrimToTokens returns the longest prefix of text whose estimate fits in
// maxTokens. The prefix always ends on a word boundary.
func TrimToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if CountTokens(text) <= maxTokens {
		return text
	}

	allowed := maxTokens * 3 / 4
	if allowed == 0 {
		return ""
	}

	words := 0
	inWord := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		switch {
		case !space && !inWord:
			inWord = true
		case space && inWord:
			inWord = false
			words++
			if words == allowed {
				return text[:i]
			}
		}
	}
	return text
}
