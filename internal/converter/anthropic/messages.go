package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mixaill76/claude_bridge/internal/config"
	"github.com/mixaill76/claude_bridge/internal/converter/converterutil"
	"github.com/mixaill76/claude_bridge/internal/converter/openai"
)

// longContextThreshold is the estimated prompt size above which requests are
// routed to the long-context model slot.
const longContextThreshold = 100_000

// ValidateRequest checks an Anthropic request for semantic errors before any
// upstream contact. Failures surface to the client as invalid_request_error.
func ValidateRequest(req *AnthropicRequest) error {
	if req.Model == "" {
		return fmt.Errorf("model field is required")
	}
	if len(req.Messages) == 0 {
		return fmt.Errorf("messages list cannot be empty")
	}
	if req.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be a positive integer")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0.0 and 1.0")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return fmt.Errorf("top_p must be between 0.0 and 1.0")
	}
	for _, msg := range req.Messages {
		if msg.Role != "user" && msg.Role != "assistant" {
			return fmt.Errorf("message role must be 'user' or 'assistant', got: %q", msg.Role)
		}
	}
	return nil
}

// ConvertRequest rewrites an Anthropic request into the OpenAI Chat
// Completions format: selects the upstream model, converts the message
// history (including the tool-call repair pass), converts tool definitions
// and tool_choice, and applies operator parameter overrides. The prompt
// token estimate is stored in the token cache under requestID for usage
// backfill at response time.
func (c *Converter) ConvertRequest(req *AnthropicRequest, requestID string, cfg *config.Config) *openai.OpenAIRequest {
	estimate := c.counter.CountRequest(req)
	c.cache.Put(requestID, estimate)

	model := c.selectModel(req, &cfg.Models, estimate)

	c.logger.Debug("Converting Anthropic request to OpenAI format",
		"request_id", requestID,
		"source_model", req.Model,
		"target_model", model,
		"message_count", len(req.Messages),
		"has_tools", len(req.Tools) > 0,
		"estimated_tokens", estimate,
	)

	messages := c.convertMessages(req)
	messages = c.repairToolCallHistory(messages)

	out := &openai.OpenAIRequest{
		Model:      model,
		Messages:   messages,
		MaxTokens:  intPtr(req.MaxTokens),
		Stream:     req.Stream,
		Stop:       req.StopSequences,
		Tools:      convertTools(req.Tools),
		ToolChoice: convertToolChoice(req.ToolChoice),
	}
	if req.Temperature != nil {
		out.Temperature = req.Temperature
	}
	if req.TopP != nil {
		out.TopP = req.TopP
	}
	if req.TopK != nil {
		out.TopK = req.TopK
	}

	c.applyParameterOverrides(out, &cfg.ParameterOverrides, requestID)

	return out
}

// selectModel resolves the upstream model name from the Anthropic model
// string and the configured routing slots.
func (c *Converter) selectModel(req *AnthropicRequest, models *config.ModelsConfig, tokenEstimate int) string {
	// Comma in the model name is an escape hatch: the caller selected the
	// upstream model literally.
	if strings.Contains(req.Model, ",") {
		return req.Model
	}

	if models.Default == "" {
		return req.Model
	}

	resolved := models.Default
	if strings.Contains(req.Model, "haiku") && models.Small != "" {
		resolved = models.Small
	} else if strings.Contains(req.Model, "sonnet") {
		resolved = models.Default
	}

	if req.Thinking.IsEnabled() && models.Think != "" {
		resolved = models.Think
	}

	if tokenEstimate > longContextThreshold && models.LongContext != "" {
		resolved = models.LongContext
	}

	return resolved
}

// convertMessages emits the ordered OpenAI message sequence: system messages
// first, then each conversation message expanded into a main message plus
// independent tool messages for its tool_result blocks.
func (c *Converter) convertMessages(req *AnthropicRequest) []openai.OpenAIMessage {
	var messages []openai.OpenAIMessage

	switch sys := req.System.(type) {
	case string:
		if sys != "" {
			messages = append(messages, openai.OpenAIMessage{Role: "system", Content: sys})
		}
	case []interface{}:
		for _, item := range sys {
			block, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if text := converterutil.GetString(block, "text"); text != "" {
				messages = append(messages, openai.OpenAIMessage{Role: "system", Content: text})
			}
		}
	}

	for _, msg := range req.Messages {
		messages = append(messages, c.convertSingleMessage(msg)...)
	}

	return messages
}

// convertSingleMessage converts one Anthropic message. List content is
// partitioned: text/image blocks form the main message content, tool_use
// blocks become tool_calls on the main message, tool_result blocks become
// independent role:"tool" messages following it.
func (c *Converter) convertSingleMessage(msg AnthropicMessage) []openai.OpenAIMessage {
	switch content := msg.Content.(type) {
	case string:
		return []openai.OpenAIMessage{{Role: msg.Role, Content: content}}

	case []interface{}:
		var contentParts []openai.ContentBlock
		var toolCalls []openai.OpenAIToolCall
		var toolResults []openai.OpenAIMessage

		for _, item := range content {
			block, ok := item.(map[string]interface{})
			if !ok {
				continue
			}

			switch block["type"] {
			case "text":
				contentParts = append(contentParts, openai.ContentBlock{
					Type: "text",
					Text: converterutil.GetString(block, "text"),
				})

			case "image":
				if part, ok := convertImageBlock(block); ok {
					contentParts = append(contentParts, part)
				}

			case "tool_use":
				input := block["input"]
				if input == nil {
					input = map[string]interface{}{}
				}
				args, err := json.Marshal(input)
				if err != nil {
					c.logger.Warn("Failed to serialize tool_use input, substituting empty object",
						"tool", converterutil.GetString(block, "name"),
						"error", err,
					)
					args = []byte("{}")
				}
				toolCalls = append(toolCalls, openai.OpenAIToolCall{
					ID:   converterutil.GetString(block, "id"),
					Type: "function",
					Function: openai.OpenAIToolFunction{
						Name:      converterutil.GetString(block, "name"),
						Arguments: string(args),
					},
				})

			case "tool_result":
				toolResults = append(toolResults, openai.OpenAIMessage{
					Role:       "tool",
					Content:    stringifyToolResult(block["content"]),
					ToolCallID: converterutil.GetString(block, "tool_use_id"),
				})
			}
		}

		var messages []openai.OpenAIMessage
		if len(contentParts) > 0 || len(toolCalls) > 0 {
			main := openai.OpenAIMessage{Role: msg.Role, Content: partsToContent(contentParts)}
			main.ToolCalls = toolCalls
			messages = append(messages, main)
		}
		messages = append(messages, toolResults...)
		return messages

	default:
		return nil
	}
}

// partsToContent simplifies a single text part to a plain string. Multi-part
// content stays a list; empty content becomes null (valid when the message
// carries tool_calls).
func partsToContent(parts []openai.ContentBlock) interface{} {
	switch {
	case len(parts) == 0:
		return nil
	case len(parts) == 1 && parts[0].Type == "text":
		return parts[0].Text
	default:
		return parts
	}
}

// convertImageBlock maps an Anthropic image block to an OpenAI image_url
// content part. Base64 sources become data URLs.
func convertImageBlock(block map[string]interface{}) (openai.ContentBlock, bool) {
	source, ok := block["source"].(map[string]interface{})
	if !ok {
		return openai.ContentBlock{}, false
	}

	var url string
	switch converterutil.GetString(source, "type") {
	case "base64":
		mediaType := converterutil.GetString(source, "media_type")
		data := converterutil.GetString(source, "data")
		if data == "" {
			return openai.ContentBlock{}, false
		}
		url = fmt.Sprintf("data:%s;base64,%s", mediaType, data)
	case "url":
		url = converterutil.GetString(source, "url")
		if url == "" {
			return openai.ContentBlock{}, false
		}
	default:
		return openai.ContentBlock{}, false
	}

	return openai.ContentBlock{Type: "image_url", ImageURL: &openai.ImageURL{URL: url}}, true
}

// stringifyToolResult flattens a tool_result content value into a string.
// List content is JSON-serialized wholesale.
func stringifyToolResult(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// repairToolCallHistory enforces the upstream invariant that every assistant
// message with tool_calls is immediately followed by matching tool messages.
// Clients routinely replay partial histories; forwarding them would make the
// upstream reject the entire request, so broken spans are dropped and logged.
func (c *Converter) repairToolCallHistory(messages []openai.OpenAIMessage) []openai.OpenAIMessage {
	if len(messages) == 0 {
		return messages
	}

	var filtered []openai.OpenAIMessage
	i := 0

	for i < len(messages) {
		current := messages[i]

		if current.Role == "assistant" && len(current.ToolCalls) > 0 {
			expected := make(map[string]bool, len(current.ToolCalls))
			for _, call := range current.ToolCalls {
				if call.ID != "" {
					expected[call.ID] = true
				}
			}

			found := make(map[string]bool)
			j := i + 1
			for j < len(messages) && messages[j].Role == "tool" {
				if id := messages[j].ToolCallID; id != "" && expected[id] {
					found[id] = true
				}
				j++
			}

			if len(found) == len(expected) {
				filtered = append(filtered, current)
				filtered = append(filtered, messages[i+1:j]...)
			} else {
				c.logger.Debug("Dropping incomplete tool_calls span",
					"expected_tool_results", len(expected),
					"found_tool_results", len(found),
				)
			}
			i = j
			continue
		}

		if current.Role == "tool" {
			if c.hasDeclaringAssistant(messages, i, current.ToolCallID) {
				filtered = append(filtered, current)
			} else {
				c.logger.Debug("Dropping orphan tool message", "tool_call_id", current.ToolCallID)
			}
			i++
			continue
		}

		filtered = append(filtered, current)
		i++
	}

	return filtered
}

// hasDeclaringAssistant scans backwards from position i for an assistant
// message declaring toolCallID, stopping at the first message that is
// neither a tool message nor an assistant message.
func (c *Converter) hasDeclaringAssistant(messages []openai.OpenAIMessage, i int, toolCallID string) bool {
	for k := i - 1; k >= 0; k-- {
		prev := messages[k]
		if prev.Role == "assistant" && len(prev.ToolCalls) > 0 {
			for _, call := range prev.ToolCalls {
				if call.ID == toolCallID {
					return true
				}
			}
			continue
		}
		if prev.Role != "tool" {
			return false
		}
	}
	return false
}

func intPtr(v int) *int {
	return &v
}
