package tokens

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/mixaill76/claude_bridge/internal/converter/anthropic"
)

// Counter estimates token counts of Anthropic-format payloads using the
// o200k_base BPE vocabulary. Counts are estimates: their only consumers are
// long-context routing and usage backfill when the upstream omits counters.
type Counter struct {
	codec  tokenizer.Codec
	logger *slog.Logger
}

// NewCounter creates a Counter. If the tokenizer vocabulary cannot be
// loaded, the counter degrades to a bytes/4 approximation.
func NewCounter(logger *slog.Logger) *Counter {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		logger.Error("Failed to load tokenizer vocabulary, falling back to byte estimate", "error", err)
		codec = nil
	}
	return &Counter{codec: codec, logger: logger}
}

// CountText counts tokens in a single string.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}
	if c.codec == nil {
		return len(text) / 4
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// CountRequest estimates the prompt size of a full request: message
// contents, system prompt, and tool definitions, concatenated in document
// order and encoded once.
func (c *Counter) CountRequest(req *anthropic.AnthropicRequest) int {
	if req == nil {
		return 0
	}

	var buf strings.Builder

	for _, msg := range req.Messages {
		writeMessageContent(&buf, msg.Content)
	}

	switch sys := req.System.(type) {
	case string:
		buf.WriteString(sys)
	case []interface{}:
		for _, item := range sys {
			block, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := block["text"].(string); ok {
				buf.WriteString(text)
			}
		}
	}

	for _, tool := range req.Tools {
		buf.WriteString(tool.Name)
		buf.WriteString(tool.Description)
		if tool.InputSchema != nil {
			buf.WriteString(canonicalJSON(tool.InputSchema))
		}
	}

	return c.CountText(buf.String())
}

// CountBlocks estimates the size of assembled response content blocks.
// Used when the upstream omits completion_tokens.
func (c *Counter) CountBlocks(blocks []anthropic.ContentBlock) int {
	var buf strings.Builder

	for _, block := range blocks {
		switch block.Type {
		case "text":
			buf.WriteString(block.Text)
		case "thinking":
			buf.WriteString(block.Thinking)
		case "tool_use":
			buf.WriteString(block.Name)
			if block.Input != nil {
				buf.WriteString(canonicalJSON(block.Input))
			}
		}
	}

	return c.CountText(buf.String())
}

func writeMessageContent(buf *strings.Builder, content interface{}) {
	switch v := content.(type) {
	case string:
		buf.WriteString(v)
	case []interface{}:
		for _, item := range v {
			block, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			switch block["type"] {
			case "text":
				if text, ok := block["text"].(string); ok {
					buf.WriteString(text)
				}
			case "tool_use":
				if input, ok := block["input"]; ok && input != nil {
					buf.WriteString(canonicalJSON(input))
				}
			}
		}
	case []anthropic.ContentBlock:
		for _, block := range v {
			switch block.Type {
			case "text":
				buf.WriteString(block.Text)
			case "tool_use":
				if block.Input != nil {
					buf.WriteString(canonicalJSON(block.Input))
				}
			}
		}
	}
}

// canonicalJSON serializes a value for counting purposes. Key order is
// whatever the encoder produces; counts stay within estimator tolerance.
func canonicalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
