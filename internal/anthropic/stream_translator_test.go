package anthropic

import (
	"io"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/claude-relay/internal/openaiwire"
)

const textSSE = `event: message_start
data: {"message":{"id":"msg_01abc","model":"claude-sonnet-4-20250514","usage":{"input_tokens":10}}}

event: content_block_start
data: {"index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"index":0,"delta":{"type":"text_delta","text":"Hel"}}

event: content_block_delta
data: {"index":0,"delta":{"type":"text_delta","text":"lo"}}

event: content_block_stop
data: {"index":0}

event: message_delta
data: {"delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}

event: message_stop
data: {}

`

func collectChunks(t *testing.T, sse string, state *StreamConverterState) []*openaiwire.Chunk {
	t.Helper()
	var chunks []*openaiwire.Chunk
	err := Translate(strings.NewReader(sse), state, func(c *openaiwire.Chunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	return chunks
}

func TestTranslate_TextOnly_EmitsRoleThenDeltasThenFinishThenUsageThenDone(t *testing.T) {
	state := NewStreamConverterState("gpt-4", 1700000000)
	chunks := collectChunks(t, textSSE, state)

	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	last := chunks[len(chunks)-1]
	if last != nil {
		t.Fatal("expected terminal emit(nil) as the final callback")
	}

	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Errorf("first chunk should carry the opening role, got %+v", chunks[0])
	}

	var text strings.Builder
	var sawFinish bool
	var sawUsage bool
	for _, c := range chunks[:len(chunks)-1] {
		text.WriteString(c.Choices[0].Delta.Content)
		if c.Choices[0].FinishReason != nil {
			sawFinish = true
			if *c.Choices[0].FinishReason != "stop" {
				t.Errorf("expected end_turn to map to stop, got %q", *c.Choices[0].FinishReason)
			}
		}
		if c.Usage != nil {
			sawUsage = true
		}
	}
	if text.String() != "Hello" {
		t.Errorf("accumulated text = %q, want %q", text.String(), "Hello")
	}
	if !sawFinish {
		t.Error("expected a finish_reason chunk")
	}
	if !sawUsage {
		t.Error("expected a usage chunk before [DONE]")
	}
	if state.AccumulatedText() != "Hello" {
		t.Errorf("AccumulatedText() = %q, want %q", state.AccumulatedText(), "Hello")
	}
}

func TestTranslate_ModelEchoInvariant(t *testing.T) {
	state := NewStreamConverterState("gpt-4-custom-alias", 1700000000)
	chunks := collectChunks(t, textSSE, state)
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if c.Model != "gpt-4-custom-alias" {
			t.Errorf("chunk model = %q, want client-supplied model echoed verbatim", c.Model)
		}
	}
}

func TestTranslate_ChunkBoundaryIndependence(t *testing.T) {
	boundaries := []int{1, 17, 63, 128, 200}
	var reference []*openaiwire.Chunk
	for i, n := range boundaries {
		state := NewStreamConverterState("gpt-4", 1700000000)
		reader := &byteAtATimeReader{data: []byte(textSSE), chunkSize: n}
		var chunks []*openaiwire.Chunk
		if err := Translate(reader, state, func(c *openaiwire.Chunk) { chunks = append(chunks, c) }); err != nil {
			t.Fatalf("chunk size %d: Translate: %v", n, err)
		}
		if i == 0 {
			reference = chunks
			continue
		}
		if len(chunks) != len(reference) {
			t.Fatalf("chunk size %d produced %d chunks, reference produced %d", n, len(chunks), len(reference))
		}
		for j := range chunks {
			if (chunks[j] == nil) != (reference[j] == nil) {
				t.Fatalf("chunk size %d: chunk %d nil-ness diverged from reference", n, j)
			}
		}
	}
}

// byteAtATimeReader splits data into reads of at most chunkSize bytes,
// simulating arbitrary TCP chunk boundaries independent of SSE line breaks.
type byteAtATimeReader struct {
	data      []byte
	chunkSize int
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.chunkSize
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestTranslate_ToolCallCumulativePartialJSON(t *testing.T) {
	const sse = `event: message_start
data: {"message":{"id":"msg_01tool","model":"claude-sonnet-4-20250514","usage":{"input_tokens":3}}}

event: content_block_start
data: {"index":0,"content_block":{"type":"tool_use","id":"toolu_01","name":"get_weather"}}

event: content_block_delta
data: {"index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\""}}

event: content_block_delta
data: {"index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":\"SF\"}"}}

event: content_block_stop
data: {"index":0}

event: message_delta
data: {"delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":8}}

event: message_stop
data: {}

`
	state := NewStreamConverterState("gpt-4", 1700000000)
	chunks := collectChunks(t, sse, state)

	var argParts []string
	var finish *string
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if len(c.Choices[0].Delta.ToolCalls) > 0 {
			argParts = append(argParts, c.Choices[0].Delta.ToolCalls[0].Function.Arguments)
		}
		if c.Choices[0].FinishReason != nil {
			finish = c.Choices[0].FinishReason
		}
	}

	// Cumulative detection: the second partial_json is a superset of the
	// first, so only the new suffix should have been emitted.
	joined := strings.Join(argParts, "")
	if joined != `{"city":"SF"}` {
		t.Errorf("concatenated tool arguments = %q, want %q", joined, `{"city":"SF"}`)
	}
	if finish == nil || *finish != "tool_calls" {
		t.Errorf("expected tool_use to map to finish_reason tool_calls, got %v", finish)
	}
}

func TestTranslate_ToolCallDeltaPartialJSON(t *testing.T) {
	const sse = `event: message_start
data: {"message":{"id":"msg_01tool","model":"claude-sonnet-4-20250514","usage":{"input_tokens":3}}}

event: content_block_start
data: {"index":0,"content_block":{"type":"tool_use","id":"toolu_01","name":"get_weather"}}

event: content_block_delta
data: {"index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}

event: content_block_delta
data: {"index":0,"delta":{"type":"input_json_delta","partial_json":"\"SF\"}"}}

event: message_stop
data: {}

`
	state := NewStreamConverterState("gpt-4", 1700000000)
	chunks := collectChunks(t, sse, state)

	var argParts []string
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if len(c.Choices[0].Delta.ToolCalls) > 0 {
			argParts = append(argParts, c.Choices[0].Delta.ToolCalls[0].Function.Arguments)
		}
	}
	joined := strings.Join(argParts, "")
	if joined != `{"city":"SF"}` {
		t.Errorf("concatenated tool arguments = %q, want %q", joined, `{"city":"SF"}`)
	}
}

func TestTranslate_ThinkingBlockCapturedNotEmitted(t *testing.T) {
	const sse = `event: message_start
data: {"message":{"id":"msg_01think","model":"claude-sonnet-4-20250514","usage":{"input_tokens":3}}}

event: content_block_start
data: {"index":0,"content_block":{"type":"thinking","thinking":""}}

event: content_block_delta
data: {"index":0,"delta":{"type":"thinking_delta","thinking":"Let me consider"}}

event: content_block_delta
data: {"index":0,"delta":{"type":"signature_delta","signature":"sig-abc"}}

event: content_block_stop
data: {"index":0}

event: content_block_start
data: {"index":1,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"index":1,"delta":{"type":"text_delta","text":"answer"}}

event: message_stop
data: {}

`
	state := NewStreamConverterState("gpt-4", 1700000000)
	chunks := collectChunks(t, sse, state)

	for _, c := range chunks {
		if c == nil {
			continue
		}
		if strings.Contains(c.Choices[0].Delta.Content, "consider") {
			t.Error("thinking content must never be emitted as an OpenAI content delta")
		}
	}

	blockType, text, sig, _, ok := state.CapturedThinking()
	if !ok {
		t.Fatal("expected CapturedThinking to report a captured block")
	}
	if text != "Let me consider" || sig != "sig-abc" {
		t.Errorf("CapturedThinking() = (%q, %q), want (%q, %q)", text, sig, "Let me consider", "sig-abc")
	}
	if blockType != "thinking" {
		t.Errorf("blockType = %q, want thinking", blockType)
	}
}

func TestTranslate_RedactedThinking_CapturedWithData(t *testing.T) {
	sse := `event: message_start
data: {"message":{"id":"msg_1","model":"claude-sonnet-4-20250514","usage":{"input_tokens":1}}}

event: content_block_start
data: {"index":0,"content_block":{"type":"redacted_thinking","data":"opaque-payload"}}

event: content_block_stop
data: {"index":0}

event: content_block_start
data: {"index":1,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"index":1,"delta":{"type":"text_delta","text":"answer"}}

event: message_stop
data: {}

`
	state := NewStreamConverterState("gpt-4", 1700000000)
	collectChunks(t, sse, state)

	blockType, text, sig, data, ok := state.CapturedThinking()
	if !ok {
		t.Fatal("expected CapturedThinking to report a captured redacted_thinking block")
	}
	if blockType != "redacted_thinking" {
		t.Errorf("blockType = %q, want redacted_thinking", blockType)
	}
	if data != "opaque-payload" {
		t.Errorf("data = %q, want opaque-payload", data)
	}
	if text != "" || sig != "" {
		t.Errorf("expected empty thinking/signature for a redacted block, got (%q, %q)", text, sig)
	}
}

func TestTranslate_TruncatedStream_NoDoneSignal(t *testing.T) {
	// Upstream cuts off mid content_block_delta, before message_stop.
	const truncated = `event: message_start
data: {"message":{"id":"msg_01trunc","model":"claude-sonnet-4-20250514","usage":{"input_tokens":3}}}

event: content_block_start
data: {"index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"index":0,"delta":{"type":"text_delta","text":"partial"}}

`
	state := NewStreamConverterState("gpt-4", 1700000000)
	var sawTerminal bool
	err := Translate(strings.NewReader(truncated), state, func(c *openaiwire.Chunk) {
		if c == nil {
			sawTerminal = true
		}
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sawTerminal {
		t.Error("a stream truncated before message_stop must never emit the terminal [DONE] signal")
	}
}

func TestStreamConverterState_CanonicalAssistantContent(t *testing.T) {
	state := NewStreamConverterState("gpt-4", 1700000000)
	collectChunks(t, textSSE, state)

	raw := state.CanonicalAssistantContent()
	if !strings.Contains(string(raw), `"type":"text"`) {
		t.Errorf("canonical content missing text block: %s", raw)
	}
	if strings.Contains(string(raw), "thinking") {
		t.Errorf("canonical content must exclude thinking blocks: %s", raw)
	}
}

func TestAccumulateToolArgs(t *testing.T) {
	tests := []struct {
		name       string
		seedArgs   string
		part       string
		wantSuffix string
		wantTotal  string
	}{
		{"first fragment", "", `{"a":1`, `{"a":1`, `{"a":1`},
		{"cumulative extension", `{"a":1`, `{"a":1,"b":2}`, `,"b":2}`, `{"a":1,"b":2}`},
		{"pure delta, not a prefix extension", `{"a":1`, `,"b":2}`, `,"b":2}`, `{"a":1,"b":2}`},
		{"empty fragment ignored", `{"a":1}`, "", "", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &toolCallTracker{arguments: tt.seedArgs}
			got := accumulateToolArgs(tracker, tt.part)
			if got != tt.wantSuffix {
				t.Errorf("accumulateToolArgs() = %q, want %q", got, tt.wantSuffix)
			}
			if tracker.arguments != tt.wantTotal {
				t.Errorf("tracker.arguments = %q, want %q", tracker.arguments, tt.wantTotal)
			}
		})
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := map[string]string{
		"end_turn":      "stop",
		"tool_use":      "tool_calls",
		"max_tokens":    "max_tokens",
		"stop_sequence": "stop_sequence",
	}
	for in, want := range tests {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}
