package anthropic

import (
	"regexp"
	"strings"
)

// Upstream models signal reasoning either inline in <think>/<thinking> tags
// or in a dedicated reasoning_content field. These helpers handle the inline
// encoding.

var (
	thinkSpanRe = regexp.MustCompile(`(?s)<think(?:ing)?>(.*?)</think(?:ing)?>`)
	thinkTagRe  = regexp.MustCompile(`</?think(?:ing)?>`)
)

// openingTags and closingTags are checked in order; "<thinking>" before
// "<think>" so the longer tag wins on prefix overlap.
var (
	openingTags = []string{"<thinking>", "<think>"}
	closingTags = []string{"</thinking>", "</think>"}
)

// hasOpeningThinkTag reports whether s contains an inline thinking opener.
func hasOpeningThinkTag(s string) bool {
	for _, tag := range openingTags {
		if strings.Contains(s, tag) {
			return true
		}
	}
	return false
}

// extractThinkingSpan returns the contents of the first complete
// <think>...</think> span, if any.
func extractThinkingSpan(s string) (string, bool) {
	m := thinkSpanRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// stripThinkingSpans removes all complete thinking spans and returns the
// remaining text, trimmed.
func stripThinkingSpans(s string) string {
	return strings.TrimSpace(thinkSpanRe.ReplaceAllString(s, ""))
}

// stripThinkingTags removes bare opening and closing tags, leaving the text
// between them. Used on streaming deltas where the span arrives in pieces.
func stripThinkingTags(s string) string {
	return thinkTagRe.ReplaceAllString(s, "")
}

// findClosingTag locates the first closing tag in s, returning its start
// offset and length.
func findClosingTag(s string) (int, int, bool) {
	best, bestLen := -1, 0
	for _, tag := range closingTags {
		if idx := strings.Index(s, tag); idx >= 0 && (best == -1 || idx < best) {
			best, bestLen = idx, len(tag)
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	return best, bestLen, true
}

// danglingClosingTagPrefix returns the longest suffix of s that is a proper
// prefix of a closing tag. A "</thinking>" split across two deltas would not
// be seen by a per-delta substring check, so the converter holds this suffix
// back until the next delta resolves it.
func danglingClosingTagPrefix(s string) string {
	maxLen := 0
	for _, tag := range closingTags {
		limit := len(tag) - 1
		if limit > len(s) {
			limit = len(s)
		}
		for n := limit; n > maxLen; n-- {
			if strings.HasSuffix(s, tag[:n]) {
				maxLen = n
				break
			}
		}
	}
	if maxLen == 0 {
		return ""
	}
	return s[len(s)-maxLen:]
}
