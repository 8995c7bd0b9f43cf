package anthropic

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/nextlevelbuilder/claude-relay/internal/openaiwire"
)

// toolCallTracker accumulates one tool_use content block's argument JSON
// across content_block_delta events.
type toolCallTracker struct {
	id        string
	name      string
	arguments string
}

// StreamConverterState is the per-connection state a Stream needs to
// translate one upstream SSE response into OpenAI chunks. It must not
// be shared across requests.
type StreamConverterState struct {
	clientModel string // echoed verbatim on every outgoing chunk

	chunkID        string
	upstreamModel  string
	createdUnix    int64
	sentOpeningRole bool

	inThinking      bool
	thinkingType    string // "thinking" or "redacted_thinking"
	thinkingText    string
	thinkingSig     string
	thinkingData    string // redacted_thinking's opaque payload
	accumulatedText string

	toolCalls   []*toolCallTracker
	toolIndex   map[int]int // content-block index -> position in toolCalls

	stopReason string

	promptTokens     int
	completionTokens int
	cacheReadTokens  int
}

// NewStreamConverterState seeds a translator for one request. clientModel
// is the original, unresolved model string the client sent; created is a
// caller-supplied unix timestamp (translators never call time.Now so
// callers stay in control of determinism for tests).
func NewStreamConverterState(clientModel string, created int64) *StreamConverterState {
	return &StreamConverterState{
		clientModel: clientModel,
		createdUnix: created,
		toolIndex:   make(map[int]int),
	}
}

// CapturedThinking returns the accumulated thinking (or redacted_thinking)
// block, if any was seen, for post-stream cache writes. blockType
// distinguishes the two so the cache can replay the original block type
// rather than always reconstructing a plain "thinking" block.
func (s *StreamConverterState) CapturedThinking() (blockType, text, signature, data string, ok bool) {
	if s.thinkingText == "" && s.thinkingSig == "" && s.thinkingData == "" {
		return "", "", "", "", false
	}
	blockType = s.thinkingType
	if blockType == "" {
		blockType = "thinking"
	}
	return blockType, s.thinkingText, s.thinkingSig, s.thinkingData, true
}

// AccumulatedText returns all emitted text content, used to build the
// canonical cache key for the post-stream write.
func (s *StreamConverterState) AccumulatedText() string {
	return s.accumulatedText
}

// CanonicalAssistantContent rebuilds this response's own content blocks
// (accumulated text plus any tool_use calls, thinking excluded) in the
// same shape an assistant message's content array takes, for use as the
// thinking cache's write-time key material.
func (s *StreamConverterState) CanonicalAssistantContent() json.RawMessage {
	var blocks []ContentBlock
	if s.accumulatedText != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: s.accumulatedText})
	}
	for _, t := range s.toolCalls {
		input := json.RawMessage(t.arguments)
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, ContentBlock{Type: "tool_use", ID: t.id, Name: t.name, Input: input})
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return nil
	}
	return data
}

// Translate reads upstream SSE lines from r and invokes emit for every
// OpenAI chunk it derives, finally invoking emit(nil) to signal the
// terminal [DONE] marker. It does not call time.Now or otherwise
// observe wall-clock time; created was fixed at construction.
func Translate(r io.Reader, state *StreamConverterState, emit func(*openaiwire.Chunk)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var currentEvent string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event:"):
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if err := state.handleEvent(currentEvent, []byte(data), emit); err != nil {
				return err
			}
		default:
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

func (s *StreamConverterState) handleEvent(event string, data []byte, emit func(*openaiwire.Chunk)) error {
	switch event {
	case "ping":
		// ignore

	case "message_start":
		var ev MessageStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		s.upstreamModel = ev.Message.Model
		s.chunkID = "chatcmpl-" + strings.TrimPrefix(ev.Message.ID, "msg_")
		s.promptTokens += ev.Message.Usage.InputTokens
		s.cacheReadTokens += ev.Message.Usage.CacheReadInputTokens

		if !s.sentOpeningRole {
			s.sentOpeningRole = true
			emit(s.newChunk(openaiwire.ChunkDelta{Role: "assistant", Content: ""}, nil))
		}

	case "content_block_start":
		var ev ContentBlockStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		switch ev.ContentBlock.Type {
		case "tool_use":
			idx := len(s.toolCalls)
			s.toolCalls = append(s.toolCalls, &toolCallTracker{
				id:   ev.ContentBlock.ID,
				name: strings.TrimSpace(ev.ContentBlock.Name),
			})
			s.toolIndex[ev.Index] = idx
			ociIdx := idx
			emit(s.newChunk(openaiwire.ChunkDelta{
				ToolCalls: []openaiwire.ToolCall{{
					Index: &ociIdx,
					ID:    ev.ContentBlock.ID,
					Type:  "function",
					Function: openaiwire.ToolCallFunc{
						Name:      strings.TrimSpace(ev.ContentBlock.Name),
						Arguments: "",
					},
				}},
			}, nil))
		case "thinking", "redacted_thinking":
			s.inThinking = true
			s.thinkingType = ev.ContentBlock.Type
			s.thinkingText += ev.ContentBlock.Thinking
			s.thinkingSig += ev.ContentBlock.Signature
			s.thinkingData += ev.ContentBlock.Data
		case "text":
			// no output; deltas carry the content
		}

	case "content_block_delta":
		var ev ContentBlockDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			s.accumulatedText += ev.Delta.Text
			emit(s.newChunk(openaiwire.ChunkDelta{Content: ev.Delta.Text}, nil))
		case "thinking_delta":
			s.thinkingText += ev.Delta.Thinking
		case "signature_delta":
			s.thinkingSig += ev.Delta.Signature
		case "input_json_delta":
			pos, ok := s.toolIndex[ev.Index]
			if !ok || pos >= len(s.toolCalls) {
				return nil
			}
			tracker := s.toolCalls[pos]
			newPart := accumulateToolArgs(tracker, ev.Delta.PartialJSON)
			if newPart == "" {
				return nil
			}
			emit(s.newChunk(openaiwire.ChunkDelta{
				ToolCalls: []openaiwire.ToolCall{{
					Index:    &pos,
					Function: openaiwire.ToolCallFunc{Arguments: newPart},
				}},
			}, nil))
		}

	case "content_block_stop":
		s.inThinking = false

	case "message_delta":
		var ev MessageDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		if ev.Delta.StopReason != "" {
			s.stopReason = ev.Delta.StopReason
			reason := mapFinishReason(s.stopReason)
			emit(s.newChunk(openaiwire.ChunkDelta{}, &reason))
		}
		if ev.Usage.OutputTokens > 0 {
			s.completionTokens = ev.Usage.OutputTokens
		}
		if ev.Usage.CacheReadInputTokens > 0 {
			s.cacheReadTokens = ev.Usage.CacheReadInputTokens
		}

	case "message_stop":
		if s.promptTokens != 0 || s.completionTokens != 0 {
			chunk := s.newChunk(openaiwire.ChunkDelta{}, nil)
			chunk.Usage = &openaiwire.Usage{
				PromptTokens:     s.promptTokens,
				CompletionTokens: s.completionTokens,
				TotalTokens:      s.promptTokens + s.completionTokens,
				PromptTokensDetails: &openaiwire.PromptTokensDetails{
					CachedTokens: s.cacheReadTokens,
				},
				CompletionTokensDetails: &openaiwire.CompletionTokensDetails{
					ReasoningTokens: 0,
				},
			}
			emit(chunk)
		}
		emit(nil)

	case "error":
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			return &StatusError{Body: ErrorBody{Error: ev.Error}, Raw: data}
		}
	}

	return nil
}

// accumulateToolArgs implements the cumulative-vs-delta detection
// policy: if part extends the tracker's accumulated arguments as a
// prefix, only the new suffix is returned and the tracker is set to
// part; otherwise part is treated as a pure delta, appended to the
// tracker, and returned verbatim.
func accumulateToolArgs(t *toolCallTracker, part string) string {
	if part == "" {
		return ""
	}
	if strings.HasPrefix(part, t.arguments) {
		suffix := part[len(t.arguments):]
		t.arguments = part
		return suffix
	}
	t.arguments += part
	return part
}

func mapFinishReason(stopReason string) string {
	switch stopReason {
	case "end_turn":
		return "stop"
	case "tool_use":
		return "tool_calls"
	default:
		return stopReason
	}
}

func (s *StreamConverterState) newChunk(delta openaiwire.ChunkDelta, finishReason *string) *openaiwire.Chunk {
	c := openaiwire.NewChunk(s.chunkID, s.clientModel, s.createdUnix, delta, finishReason)
	return &c
}
