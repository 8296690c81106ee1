package anthropic

import (
	"bytes"
	"encoding/json"
)

// AnthropicRequest represents a request to the Anthropic Messages API.
// Deserialized directly from the inbound HTTP body (no SDK dependency).
type AnthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        interface{}        `json:"system,omitempty"` // string or []{type:"text", text}
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []AnthropicTool    `json:"tools,omitempty"`
	ToolChoice    interface{}        `json:"tool_choice,omitempty"`
	Thinking      *AnthropicThinking `json:"thinking,omitempty"`
	Metadata      *AnthropicMetadata `json:"metadata,omitempty"`
}

// AnthropicMessage represents a single message in the Anthropic conversation.
type AnthropicMessage struct {
	Role    string      `json:"role"`    // "user" or "assistant"
	Content interface{} `json:"content"` // string or []ContentBlock
}

// ContentBlock is a universal content block used in both requests and responses.
// Marshaling is discriminator-driven so each block type emits exactly the
// fields the wire format requires (empty strings included).
type ContentBlock struct {
	Type string `json:"type"`

	// text block
	Text string `json:"text,omitempty"`

	// image block
	Source *MediaSource `json:"source,omitempty"`

	// tool_use block (in assistant messages / responses)
	ID    string      `json:"id,omitempty"`
	Name  string      `json:"name,omitempty"`
	Input interface{} `json:"input,omitempty"`

	// tool_result block (in user messages)
	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   interface{} `json:"content,omitempty"` // string or []ContentBlock
	IsError   bool        `json:"is_error,omitempty"`

	// thinking block (in responses)
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// MarshalJSON emits the per-type wire shape. A text block always carries its
// text field and a tool_use block always carries an input object, even when
// empty; the default omitempty tags would drop them.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case "text":
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})
	case "thinking":
		return json.Marshal(struct {
			Type      string `json:"type"`
			Thinking  string `json:"thinking"`
			Signature string `json:"signature,omitempty"`
		}{b.Type, b.Thinking, b.Signature})
	case "tool_use":
		input := b.Input
		if input == nil {
			input = map[string]interface{}{}
		}
		return json.Marshal(struct {
			Type  string      `json:"type"`
			ID    string      `json:"id"`
			Name  string      `json:"name"`
			Input interface{} `json:"input"`
		}{b.Type, b.ID, b.Name, input})
	case "tool_result":
		return json.Marshal(struct {
			Type      string      `json:"type"`
			ToolUseID string      `json:"tool_use_id"`
			Content   interface{} `json:"content"`
			IsError   bool        `json:"is_error,omitempty"`
		}{b.Type, b.ToolUseID, b.Content, b.IsError})
	default:
		type alias ContentBlock
		return json.Marshal(alias(b))
	}
}

// MediaSource describes the source of an image content block.
type MediaSource struct {
	Type      string `json:"type"`                 // "base64" or "url"
	MediaType string `json:"media_type,omitempty"` // e.g. "image/jpeg"
	Data      string `json:"data,omitempty"`       // base64-encoded data (type=base64)
	URL       string `json:"url,omitempty"`        // remote URL (type=url)
}

// AnthropicTool represents a tool definition in an Anthropic request.
type AnthropicTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema interface{} `json:"input_schema,omitempty"`
}

// AnthropicThinking controls extended thinking. The wire format accepts
// either a boolean or an object {type:"enabled"|"disabled", budget_tokens?}.
type AnthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// UnmarshalJSON accepts both the boolean and the object encoding.
func (t *AnthropicThinking) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("true")) {
		t.Type = "enabled"
		return nil
	}
	if bytes.Equal(trimmed, []byte("false")) {
		t.Type = "disabled"
		return nil
	}

	type alias AnthropicThinking
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = AnthropicThinking(a)
	return nil
}

// IsEnabled reports whether thinking was requested.
func (t *AnthropicThinking) IsEnabled() bool {
	return t != nil && t.Type == "enabled"
}

// AnthropicMetadata carries per-request metadata.
type AnthropicMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Response types
// ---------------------------------------------------------------------------

// AnthropicResponse represents a non-streaming Anthropic Messages response.
type AnthropicResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        AnthropicUsage `json:"usage"`
}

// AnthropicUsage represents token usage reported to the client.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
