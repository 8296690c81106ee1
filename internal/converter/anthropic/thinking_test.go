package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractThinkingSpan(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		found bool
	}{
		{"think tag", "<think>plan</think>rest", "plan", true},
		{"thinking tag", "<thinking> plan </thinking>rest", "plan", true},
		{"multiline span", "<think>line1\nline2</think>", "line1\nline2", true},
		{"no span", "plain text", "", false},
		{"unclosed tag", "<think>never ends", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractThinkingSpan(tt.in)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripThinkingSpans(t *testing.T) {
	assert.Equal(t, "rest", stripThinkingSpans("<think>plan</think>rest"))
	assert.Equal(t, "a b", stripThinkingSpans("a <thinking>x</thinking>b"))
	assert.Equal(t, "", stripThinkingSpans("<think>only thinking</think>"))
}

func TestStripThinkingTags(t *testing.T) {
	assert.Equal(t, "plan", stripThinkingTags("<think>plan</think>"))
	assert.Equal(t, "partial", stripThinkingTags("<thinking>partial"))
	assert.Equal(t, "no tags", stripThinkingTags("no tags"))
}

func TestFindClosingTag(t *testing.T) {
	idx, length, ok := findClosingTag("abc</think>def")
	assert.True(t, ok)
	assert.Equal(t, 3, idx)
	assert.Equal(t, len("</think>"), length)

	idx, length, ok = findClosingTag("</thinking>")
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, len("</thinking>"), length)

	_, _, ok = findClosingTag("no closing tag")
	assert.False(t, ok)
}

func TestDanglingClosingTagPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"text</thin", "</thin"},
		{"text</", "</"},
		{"text<", "<"},
		{"text</thinking", "</thinking"},
		{"plain text", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, danglingClosingTagPrefix(tt.in), tt.in)
	}
}
