package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/claude-relay/internal/openaiwire"
)

// ConvertNonStream is the stateless counterpart to Translate: it takes
// one full upstream Messages API response and the original,
// client-requested model string and produces a single OpenAI
// chat-completion object. created is caller-supplied so this stays a
// pure function.
func ConvertNonStream(resp *Response, clientModel string, created int64) openaiwire.Completion {
	var text strings.Builder
	var toolCalls []openaiwire.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := block.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			toolCalls = append(toolCalls, openaiwire.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: openaiwire.ToolCallFunc{
					Name:      strings.TrimSpace(block.Name),
					Arguments: string(args),
				},
			})
		}
	}

	msg := openaiwire.Message{
		Role:      "assistant",
		ToolCalls: toolCalls,
	}
	if text.Len() > 0 {
		msg.Content = text.String()
	}

	chunkID := "chatcmpl-" + strings.TrimPrefix(resp.ID, "msg_")

	completion := openaiwire.Completion{
		ID:      chunkID,
		Object:  "chat.completion",
		Created: created,
		Model:   clientModel,
		Choices: []openaiwire.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: mapFinishReason(resp.StopReason),
		}},
		Usage: &openaiwire.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			PromptTokensDetails: &openaiwire.PromptTokensDetails{
				CachedTokens: resp.Usage.CacheReadInputTokens,
			},
			CompletionTokensDetails: &openaiwire.CompletionTokensDetails{
				ReasoningTokens: 0,
			},
		},
	}

	return completion
}

// CapturedThinking reports any thinking or redacted_thinking block
// present in resp, for the pipeline's post-response cache write.
// blockType lets the cache replay the original block type rather than
// always reconstructing a plain "thinking" block.
func CapturedThinking(resp *Response) (blockType, thinking, signature, data string, ok bool) {
	for _, block := range resp.Content {
		if block.Type == "thinking" || block.Type == "redacted_thinking" {
			return block.Type, block.Thinking, block.Signature, block.Data, true
		}
	}
	return "", "", "", "", false
}
