package anthropic

import (
	"github.com/mixaill76/claude_bridge/internal/config"
	"github.com/mixaill76/claude_bridge/internal/converter/converterutil"
	"github.com/mixaill76/claude_bridge/internal/converter/openai"
)

// convertTools maps Anthropic tool definitions to OpenAI function tools.
func convertTools(tools []AnthropicTool) []openai.OpenAITool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]openai.OpenAITool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.OpenAITool{
			Type: "function",
			Function: openai.OpenAIToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return out
}

// convertToolChoice maps the Anthropic tool_choice value to OpenAI form.
// Unrecognized values pass through unchanged.
func convertToolChoice(choice interface{}) interface{} {
	switch v := choice.(type) {
	case nil:
		return nil
	case string:
		switch v {
		case "any":
			return "required"
		case "auto":
			return "auto"
		default:
			return v
		}
	case map[string]interface{}:
		if v["type"] == "tool" {
			if name := converterutil.GetString(v, "name"); name != "" {
				return map[string]interface{}{
					"type":     "function",
					"function": map[string]interface{}{"name": name},
				}
			}
		}
		return v
	default:
		return v
	}
}

// applyParameterOverrides replaces client-supplied sampling parameters with
// operator-configured values. Overrides are per-parameter.
func (c *Converter) applyParameterOverrides(req *openai.OpenAIRequest, overrides *config.ParameterOverrides, requestID string) {
	var applied []string

	if overrides.MaxTokens != nil {
		req.MaxTokens = overrides.MaxTokens
		applied = append(applied, "max_tokens")
	}
	if overrides.Temperature != nil {
		req.Temperature = overrides.Temperature
		applied = append(applied, "temperature")
	}
	if overrides.TopP != nil {
		req.TopP = overrides.TopP
		applied = append(applied, "top_p")
	}
	if overrides.TopK != nil {
		req.TopK = overrides.TopK
		applied = append(applied, "top_k")
	}

	if len(applied) > 0 {
		c.logger.Debug("Applied parameter overrides", "request_id", requestID, "parameters", applied)
	}
}
