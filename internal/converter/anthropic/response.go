package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/mixaill76/claude_bridge/internal/converter/openai"
)

// ErrInvalidUpstream indicates the upstream returned a response the
// assembler cannot work with.
var ErrInvalidUpstream = errors.New("invalid upstream response")

// ConvertResponse assembles an Anthropic Messages response from a
// non-streaming OpenAI Chat Completion. Content blocks are produced from the
// first choice: reasoning_content and inline <think> spans become thinking
// blocks, remaining text becomes a text block, and tool calls become
// tool_use blocks with parsed arguments.
func (c *Converter) ConvertResponse(resp *openai.OpenAIResponse, originalModel, requestID string) (*AnthropicResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidUpstream)
	}

	choice := resp.Choices[0]
	blocks := c.extractContentBlocks(choice.Message)

	usage := c.resolveUsage(resp.Usage, requestID, blocks)

	model := originalModel
	if model == "" {
		model = resp.Model
	}

	id := resp.ID
	if id == "" {
		id = syntheticMessageID()
	}

	return &AnthropicResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Content:    blocks,
		Model:      model,
		StopReason: mapFinishReason(choice.FinishReason),
		Usage:      usage,
	}, nil
}

func (c *Converter) extractContentBlocks(msg openai.OpenAIResponseMessage) []ContentBlock {
	var blocks []ContentBlock

	if reasoning := strings.TrimSpace(msg.ReasoningContent); reasoning != "" {
		blocks = append(blocks, ContentBlock{
			Type:      "thinking",
			Thinking:  reasoning,
			Signature: syntheticSignature(),
		})
	}

	if content := strings.TrimSpace(msg.Content); content != "" {
		if span, ok := extractThinkingSpan(content); ok {
			if len(blocks) == 0 && span != "" {
				blocks = append(blocks, ContentBlock{
					Type:      "thinking",
					Thinking:  span,
					Signature: syntheticSignature(),
				})
			}
			if clean := stripThinkingSpans(content); clean != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: clean})
			}
		} else {
			blocks = append(blocks, ContentBlock{Type: "text", Text: content})
		}
	}

	for _, call := range msg.ToolCalls {
		blocks = append(blocks, ContentBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: c.parseToolArguments(call.Function.Arguments),
		})
	}

	if len(blocks) == 0 {
		blocks = []ContentBlock{{Type: "text", Text: ""}}
	}

	return blocks
}

// parseToolArguments parses a tool-call arguments string. Some upstreams
// emit single-quoted or otherwise malformed JSON; the fallback chain tries a
// quote swap, then structural repair, then gives up with an empty object.
func (c *Converter) parseToolArguments(arguments string) map[string]interface{} {
	if arguments == "" {
		return map[string]interface{}{}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &parsed); err == nil {
		return parsed
	}

	swapped := strings.ReplaceAll(arguments, "'", `"`)
	if err := json.Unmarshal([]byte(swapped), &parsed); err == nil {
		return parsed
	}

	if repaired, err := jsonrepair.JSONRepair(arguments); err == nil {
		if err := json.Unmarshal([]byte(repaired), &parsed); err == nil {
			return parsed
		}
	}

	c.logger.Warn("Failed to parse tool arguments, substituting empty object",
		"arguments_prefix", truncateString(arguments, 100),
	)
	return map[string]interface{}{}
}

// resolveUsage fills usage counters, backfilling from the token cache and
// the estimator when the upstream omits them. The cache entry is consumed.
func (c *Converter) resolveUsage(usage *openai.OpenAIUsage, requestID string, blocks []ContentBlock) AnthropicUsage {
	var promptTokens, completionTokens int
	if usage != nil {
		promptTokens = usage.PromptTokens
		completionTokens = usage.CompletionTokens
	}

	if promptTokens == 0 && requestID != "" {
		if cached, ok := c.cache.Get(requestID, true); ok {
			promptTokens = cached
		}
	}

	if completionTokens == 0 && len(blocks) > 0 {
		completionTokens = c.counter.CountBlocks(blocks)
	}

	return AnthropicUsage{
		InputTokens:  promptTokens,
		OutputTokens: completionTokens,
	}
}

// mapFinishReason maps an OpenAI finish_reason to an Anthropic stop_reason.
func mapFinishReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "content_filter":
		return "content_filter"
	case "tool_calls", "function_call":
		return "tool_use"
	default:
		return "end_turn"
	}
}

func syntheticMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixMilli())
}

// syntheticSignature produces the opaque signature closing a thinking block.
// Clients treat it as an opaque token; uniqueness per block is all that is
// required.
func syntheticSignature() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
