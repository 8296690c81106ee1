package anthropic

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mixaill76/claude_bridge/internal/converter/openai"
)

// thinkingMode identifies how the upstream encodes reasoning output.
type thinkingMode int

const (
	thinkingNone      thinkingMode = iota
	thinkingInline                 // <think>...</think> spans inside delta.content
	thinkingReasoning              // dedicated delta.reasoning_content field
)

// streamToolCall tracks one upstream tool call across its argument deltas.
// The synthetic flags mark placeholder identity so a late-arriving real id
// or name can replace it.
type streamToolCall struct {
	id            string
	name          string
	args          string
	syntheticID   bool
	syntheticName bool
}

// StreamConverter consumes an OpenAI-style SSE byte stream and emits an
// Anthropic-style SSE event stream. One converter serves one stream; it is
// single-tasked and needs no internal synchronization.
type StreamConverter struct {
	conv      *Converter
	model     string
	requestID string

	messageID string
	started   bool
	finished  bool

	contentIndex int
	blockOpen    bool
	textStarted  bool

	thinkingChecked bool
	thinkingStarted bool
	thinkingClosed  bool
	thinkingMode    thinkingMode
	carry           string

	toolBlockIndex map[int]int
	toolCalls      map[int]*streamToolCall

	accumulated strings.Builder
}

// NewStream creates a streaming converter for one request. The model is
// echoed in the message_start event; requestID keys the token cache.
func (c *Converter) NewStream(model, requestID string) *StreamConverter {
	return &StreamConverter{
		conv:           c,
		model:          model,
		requestID:      requestID,
		messageID:      syntheticMessageID(),
		toolBlockIndex: make(map[int]int),
		toolCalls:      make(map[int]*streamToolCall),
	}
}

// Run reads upstream SSE lines until the stream finishes and writes
// Anthropic events to w as they are produced. Write errors abort the stream;
// upstream parse errors are logged and skipped. If the upstream terminates
// before sending a finish_reason, the stream is finalized best-effort.
func (sc *StreamConverter) Run(upstream io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if sc.finished {
			break
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			continue
		}

		var chunk openai.OpenAIStreamingChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			sc.conv.logger.Error("Failed to parse upstream chunk, skipping",
				"request_id", sc.requestID,
				"error", err,
				"data_prefix", truncateString(data, 100),
			)
			continue
		}

		if err := sc.processChunk(w, &chunk); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		sc.conv.logger.Error("Upstream stream read error", "request_id", sc.requestID, "error", err)
		if sc.started && !sc.finished {
			return sc.writeError(w, fmt.Sprintf("upstream read error: %v", err))
		}
		return fmt.Errorf("upstream read error: %w", err)
	}

	// Upstream closed without a finish_reason chunk.
	if sc.started && !sc.finished {
		return sc.finalize(w, nil, "")
	}

	return nil
}

func (sc *StreamConverter) processChunk(w io.Writer, chunk *openai.OpenAIStreamingChunk) error {
	if chunk.Error != nil {
		serialized, err := json.Marshal(chunk.Error)
		if err != nil {
			serialized = []byte(fmt.Sprintf("%v", chunk.Error))
		}
		return sc.writeError(w, string(serialized))
	}

	if !sc.started {
		if err := sc.writeMessageStart(w); err != nil {
			return err
		}
		sc.started = true
	}

	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]
	delta := choice.Delta

	hasContent := delta.Content != ""
	hasReasoning := delta.ReasoningContent != ""
	hasToolCalls := len(delta.ToolCalls) > 0

	if !hasContent && !hasReasoning && !hasToolCalls && choice.FinishReason == nil {
		return nil
	}

	// Thinking detection happens once, on the first content-bearing delta.
	if !sc.thinkingChecked && (hasContent || hasReasoning) {
		sc.thinkingChecked = true
		if hasOpeningThinkTag(delta.Content) {
			sc.thinkingMode = thinkingInline
		} else if hasReasoning {
			sc.thinkingMode = thinkingReasoning
		}
	}

	remainingText := delta.Content

	switch sc.thinkingMode {
	case thinkingInline:
		var err error
		remainingText, err = sc.handleInlineThinking(w, delta.Content)
		if err != nil {
			return err
		}

	case thinkingReasoning:
		if hasReasoning {
			if err := sc.startThinkingBlock(w); err != nil {
				return err
			}
			if err := sc.writeThinkingDelta(w, delta.ReasoningContent); err != nil {
				return err
			}
		} else {
			// Reasoning phase ends when the field goes away. The same
			// delta's content continues as regular text below.
			sc.thinkingMode = thinkingNone
			if err := sc.closeThinkingBlock(w); err != nil {
				return err
			}
		}
	}

	if sc.thinkingMode == thinkingNone && remainingText != "" {
		if err := sc.writeTextDelta(w, remainingText); err != nil {
			return err
		}
	}

	if hasToolCalls && !sc.finished {
		if err := sc.handleToolCalls(w, delta.ToolCalls); err != nil {
			return err
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		return sc.finalize(w, chunk, *choice.FinishReason)
	}

	return nil
}

// handleInlineThinking processes one delta while in inline-tag mode and
// returns the text remaining after a closing tag, if any. A closing tag
// split across deltas is handled by carrying the dangling suffix into the
// next delta.
func (sc *StreamConverter) handleInlineThinking(w io.Writer, content string) (string, error) {
	content = sc.carry + content
	sc.carry = ""

	if err := sc.startThinkingBlock(w); err != nil {
		return "", err
	}

	if idx, tagLen, ok := findClosingTag(content); ok {
		if thinking := stripThinkingTags(content[:idx]); thinking != "" {
			if err := sc.writeThinkingDelta(w, thinking); err != nil {
				return "", err
			}
		}
		sc.thinkingMode = thinkingNone
		if err := sc.closeThinkingBlock(w); err != nil {
			return "", err
		}
		return content[idx+tagLen:], nil
	}

	if dangling := danglingClosingTagPrefix(content); dangling != "" {
		sc.carry = dangling
		content = content[:len(content)-len(dangling)]
	}

	if thinking := stripThinkingTags(content); thinking != "" {
		if err := sc.writeThinkingDelta(w, thinking); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (sc *StreamConverter) handleToolCalls(w io.Writer, calls []openai.OpenAIStreamingToolCall) error {
	processed := make(map[int]bool, len(calls))

	for _, call := range calls {
		k := call.Index
		if processed[k] {
			continue
		}
		processed[k] = true

		if _, known := sc.toolBlockIndex[k]; !known {
			// Whatever block is currently open ends before the tool block
			// starts. An open thinking block gets its signature first.
			if sc.thinkingStarted && !sc.thinkingClosed {
				sc.thinkingMode = thinkingNone
				if err := sc.closeThinkingBlock(w); err != nil {
					return err
				}
			} else if sc.blockOpen {
				if err := sc.writeBlockStop(w); err != nil {
					return err
				}
				sc.contentIndex++
			}
			sc.toolBlockIndex[k] = sc.contentIndex

			id := call.ID
			syntheticID := id == ""
			if syntheticID {
				id = fmt.Sprintf("call_%d_%d", time.Now().UnixMilli(), k)
			}
			name := ""
			if call.Function != nil {
				name = call.Function.Name
			}
			syntheticName := name == ""
			if syntheticName {
				name = fmt.Sprintf("tool_%d", k)
			} else {
				sc.accumulated.WriteString(name)
			}

			if err := writeEvent(w, "content_block_start", contentBlockStartEvent{
				Type:  "content_block_start",
				Index: sc.contentIndex,
				ContentBlock: toolUseBlock{
					Type:  "tool_use",
					ID:    id,
					Name:  name,
					Input: map[string]interface{}{},
				},
			}); err != nil {
				return err
			}
			if err := sc.writePing(w); err != nil {
				return err
			}
			sc.blockOpen = true
			sc.toolCalls[k] = &streamToolCall{
				id:            id,
				name:          name,
				syntheticID:   syntheticID,
				syntheticName: syntheticName,
			}

		} else if tc := sc.toolCalls[k]; tc != nil {
			// Upstream delivered the real identity after placeholders were
			// synthesized. Update bookkeeping; no new events.
			if call.ID != "" && tc.syntheticID {
				tc.id = call.ID
				tc.syntheticID = false
			}
			if call.Function != nil && call.Function.Name != "" && tc.syntheticName {
				tc.name = call.Function.Name
				tc.syntheticName = false
			}
		}

		if call.Function != nil && call.Function.Arguments != "" {
			fragment := call.Function.Arguments
			sc.accumulated.WriteString(fragment)
			if tc := sc.toolCalls[k]; tc != nil {
				tc.args += fragment
			}
			if err := writeEvent(w, "content_block_delta", contentBlockDeltaEvent{
				Type:  "content_block_delta",
				Index: sc.contentIndex,
				Delta: inputJSONDelta{Type: "input_json_delta", PartialJSON: fragment},
			}); err != nil {
				return err
			}
		}
	}

	return nil
}

// finalize closes the open block, emits message_delta with the mapped stop
// reason and synthesized usage, then message_stop. chunk may be nil when the
// upstream ended without a finish chunk.
func (sc *StreamConverter) finalize(w io.Writer, chunk *openai.OpenAIStreamingChunk, finishReason string) error {
	sc.finished = true

	// An open thinking block must receive its signature before the stop.
	if sc.thinkingStarted && !sc.thinkingClosed {
		if err := sc.closeThinkingBlock(w); err != nil {
			return err
		}
	} else if sc.blockOpen {
		if err := sc.writeBlockStop(w); err != nil {
			return err
		}
		sc.blockOpen = false
	}

	var usage *openai.OpenAIUsage
	if chunk != nil {
		if len(chunk.Choices) > 0 && chunk.Choices[0].Usage != nil {
			usage = chunk.Choices[0].Usage
		} else {
			usage = chunk.Usage
		}
	}

	var inputTokens, outputTokens int
	if usage != nil {
		inputTokens = usage.PromptTokens
		outputTokens = usage.CompletionTokens
	}
	if inputTokens == 0 && sc.requestID != "" {
		if cached, ok := sc.conv.cache.Get(sc.requestID, true); ok {
			inputTokens = cached
		}
	}
	if outputTokens == 0 && sc.accumulated.Len() > 0 {
		outputTokens = sc.conv.counter.CountText(sc.accumulated.String())
	}

	if err := writeEvent(w, "message_delta", messageDeltaEvent{
		Type:  "message_delta",
		Delta: messageDeltaBody{StopReason: mapStreamFinishReason(finishReason)},
		Usage: AnthropicUsage{InputTokens: inputTokens, OutputTokens: outputTokens},
	}); err != nil {
		return err
	}

	return writeEvent(w, "message_stop", messageStopEvent{Type: "message_stop"})
}

func (sc *StreamConverter) writeMessageStart(w io.Writer) error {
	inputTokens := 0
	if sc.requestID != "" {
		if cached, ok := sc.conv.cache.Get(sc.requestID, false); ok {
			inputTokens = cached
		}
	}

	return writeEvent(w, "message_start", messageStartEvent{
		Type: "message_start",
		Message: streamOpener{
			ID:      sc.messageID,
			Type:    "message",
			Role:    "assistant",
			Content: []ContentBlock{},
			Model:   sc.model,
			Usage:   AnthropicUsage{InputTokens: inputTokens},
		},
	})
}

func (sc *StreamConverter) startThinkingBlock(w io.Writer) error {
	if sc.thinkingStarted {
		return nil
	}
	sc.thinkingStarted = true

	if err := writeEvent(w, "content_block_start", contentBlockStartEvent{
		Type:         "content_block_start",
		Index:        sc.contentIndex,
		ContentBlock: thinkingBlock{Type: "thinking", Thinking: ""},
	}); err != nil {
		return err
	}
	sc.blockOpen = true
	return sc.writePing(w)
}

// closeThinkingBlock terminates the thinking block with a synthetic
// signature_delta followed by its content_block_stop.
func (sc *StreamConverter) closeThinkingBlock(w io.Writer) error {
	if !sc.thinkingStarted || sc.thinkingClosed {
		return nil
	}
	sc.thinkingClosed = true

	if err := writeEvent(w, "content_block_delta", contentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: sc.contentIndex,
		Delta: signatureDelta{Type: "signature_delta", Signature: syntheticSignature()},
	}); err != nil {
		return err
	}
	if err := sc.writeBlockStop(w); err != nil {
		return err
	}
	sc.blockOpen = false
	sc.contentIndex++
	return nil
}

func (sc *StreamConverter) writeThinkingDelta(w io.Writer, thinking string) error {
	sc.accumulated.WriteString(thinking)
	return writeEvent(w, "content_block_delta", contentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: sc.contentIndex,
		Delta: thinkingDelta{Type: "thinking_delta", Thinking: thinking},
	})
}

func (sc *StreamConverter) writeTextDelta(w io.Writer, text string) error {
	if !sc.textStarted {
		sc.textStarted = true
		if err := writeEvent(w, "content_block_start", contentBlockStartEvent{
			Type:         "content_block_start",
			Index:        sc.contentIndex,
			ContentBlock: textBlock{Type: "text", Text: ""},
		}); err != nil {
			return err
		}
		sc.blockOpen = true
		if err := sc.writePing(w); err != nil {
			return err
		}
	}

	sc.accumulated.WriteString(text)
	return writeEvent(w, "content_block_delta", contentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: sc.contentIndex,
		Delta: textDelta{Type: "text_delta", Text: text},
	})
}

func (sc *StreamConverter) writeBlockStop(w io.Writer) error {
	return writeEvent(w, "content_block_stop", contentBlockStopEvent{
		Type:  "content_block_stop",
		Index: sc.contentIndex,
	})
}

func (sc *StreamConverter) writePing(w io.Writer) error {
	return writeEvent(w, "ping", pingEvent{Type: "ping"})
}

func (sc *StreamConverter) writeError(w io.Writer, message string) error {
	return writeEvent(w, "error", errorEvent{
		Type:    "error",
		Message: errorPayload{Type: "api_error", Message: message},
	})
}

// mapStreamFinishReason maps an upstream finish_reason to an Anthropic
// stop_reason for streaming finalization.
func mapStreamFinishReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}
