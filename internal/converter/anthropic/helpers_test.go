package anthropic

import (
	"strings"

	"github.com/mixaill76/claude_bridge/internal/testhelpers"
)

// stubCounter returns deterministic counts so routing and usage backfill
// paths are testable without the real tokenizer.
type stubCounter struct {
	requestTokens int
}

func (s *stubCounter) CountRequest(req *AnthropicRequest) int {
	return s.requestTokens
}

func (s *stubCounter) CountText(text string) int {
	return len(strings.Fields(text))
}

func (s *stubCounter) CountBlocks(blocks []ContentBlock) int {
	var buf strings.Builder
	for _, block := range blocks {
		buf.WriteString(block.Text)
		buf.WriteString(block.Thinking)
	}
	return s.CountText(buf.String())
}

type stubCache struct {
	entries map[string]int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]int)}
}

func (s *stubCache) Put(id string, tokens int) {
	if tokens <= 0 {
		return
	}
	s.entries[id] = tokens
}

func (s *stubCache) Get(id string, remove bool) (int, bool) {
	tokens, ok := s.entries[id]
	if ok && remove {
		delete(s.entries, id)
	}
	return tokens, ok
}

func newTestConverter() (*Converter, *stubCache) {
	return newTestConverterWithEstimate(10)
}

func newTestConverterWithEstimate(estimate int) (*Converter, *stubCache) {
	cache := newStubCache()
	return New(&stubCounter{requestTokens: estimate}, cache, testhelpers.NewTestLogger()), cache
}
