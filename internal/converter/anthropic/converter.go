package anthropic

import (
	"log/slog"
)

// TokenCounter estimates token counts for routing and usage backfill.
// Implemented by tokens.Counter.
type TokenCounter interface {
	CountRequest(req *AnthropicRequest) int
	CountBlocks(blocks []ContentBlock) int
	CountText(text string) int
}

// TokenCache maps request ids to prompt token estimates. Implemented by
// tokens.Cache.
type TokenCache interface {
	Put(id string, tokens int)
	Get(id string, remove bool) (int, bool)
}

// Converter translates between the Anthropic Messages wire format and the
// OpenAI Chat Completions wire format, in both directions.
type Converter struct {
	counter TokenCounter
	cache   TokenCache
	logger  *slog.Logger
}

// New creates a Converter.
func New(counter TokenCounter, cache TokenCache, logger *slog.Logger) *Converter {
	return &Converter{
		counter: counter,
		cache:   cache,
		logger:  logger,
	}
}
