package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/claude-relay/internal/modelvariant"
	"github.com/nextlevelbuilder/claude-relay/internal/openaiwire"
)

// byokProbeMaxTokens bounds how small a max_tokens a key-check probe is
// allowed to request; clients validating a key before real use send a
// minimal, cheap completion rather than a real prompt.
const byokProbeMaxTokens = 5

var byokProbeContents = map[string]bool{
	"hi":    true,
	"hello": true,
	"test":  true,
	"ping":  true,
}

// IsBYOKProbe recognizes the canned "is this key valid" shape clients
// send before routing real traffic to a provider: a single short user
// turn with a tiny max_tokens. Real conversational requests never look
// like this, so false positives are not a practical concern.
func IsBYOKProbe(req *InboundRequest) bool {
	if len(req.Messages) != 1 {
		return false
	}
	if req.MaxTokens == nil || *req.MaxTokens > byokProbeMaxTokens {
		return false
	}
	msg := req.Messages[0]
	if msg.Role != "user" {
		return false
	}

	var text string
	if err := json.Unmarshal(msg.Content, &text); err != nil {
		return false
	}
	return byokProbeContents[strings.ToLower(strings.TrimSpace(text))]
}

// CannedBypassNonStream is the fixed, zero-upstream-cost response to a
// recognized key-check probe.
func CannedBypassNonStream(clientModel string, created int64) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-byok-check",
		"object":  "chat.completion",
		"created": created,
		"model":   clientModel,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": "OK",
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     0,
			"completion_tokens": 1,
			"total_tokens":      1,
		},
	}
}

// CannedBypassStream is the streaming counterpart to CannedBypassNonStream:
// a recognized key-check probe sent with stream:true still gets an
// SSE-framed response, matching the request's own shape rather than a
// bare JSON body an SSE-only client parser can't consume.
func CannedBypassStream(clientModel string, created int64) []openaiwire.Chunk {
	id := "chatcmpl-byok-check"
	finishReason := "stop"
	return []openaiwire.Chunk{
		openaiwire.NewChunk(id, clientModel, created, openaiwire.ChunkDelta{Role: "assistant", Content: ""}, nil),
		openaiwire.NewChunk(id, clientModel, created, openaiwire.ChunkDelta{Content: "OK"}, nil),
		openaiwire.NewChunk(id, clientModel, created, openaiwire.ChunkDelta{}, &finishReason),
	}
}

// SelectiveGatewayRejects reports whether the pipeline's selective-gateway
// rule should 404 this request: the model is not Claude-family and the
// request is not a BYOK probe.
func SelectiveGatewayRejects(req *InboundRequest) bool {
	if modelvariant.IsClaudeFamily(req.Model) {
		return false
	}
	return !IsBYOKProbe(req)
}

// ModelNotSupportedBody is the fixed 404 body the selective-gateway rule
// returns.
func ModelNotSupportedBody() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"message": "This proxy only serves Claude-family models.",
			"type":    "invalid_request_error",
			"code":    "model_not_supported_by_proxy",
		},
	}
}
