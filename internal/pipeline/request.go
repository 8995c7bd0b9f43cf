// Package pipeline orchestrates one inbound chat-completion request
// end to end: authorization, model-variant resolution, body rewriting,
// token acquisition, thinking-cache injection, upstream dispatch, and
// response translation.
package pipeline

import "encoding/json"

// InboundMessage is the minimal shape this proxy needs from a message
// in the client's request body; Content is left raw since it may be a
// bare string or a content-block array.
type InboundMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// InboundRequest is the parsed shape of an incoming OpenAI-style chat
// request. Fields not declared here are dropped when the body is
// decoded; only the declared fields can reach the upstream body, and
// then only where the pipeline's field whitelist allows them.
type InboundRequest struct {
	Model       string            `json:"model"`
	Messages    []InboundMessage  `json:"messages"`
	Stream      bool              `json:"stream"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	TopK        *int              `json:"top_k,omitempty"`
	Metadata    json.RawMessage   `json:"metadata,omitempty"`
	Tools       json.RawMessage   `json:"tools,omitempty"`
	ToolChoice  json.RawMessage   `json:"tool_choice,omitempty"`

	// System carries a native Messages API top-level system prompt (a
	// bare string or an array of {type,text} blocks), present on
	// passthrough requests that never synthesize a role:"system"
	// message. RewriteBody merges this ahead of any embedded system
	// messages.
	System json.RawMessage `json:"system,omitempty"`

	// Accept either spelling on the way in.
	StopSequences    []string `json:"stop_sequences,omitempty"`
	Stop             []string `json:"stop,omitempty"`
}

// stopSequences normalizes the two accepted spellings.
func (r *InboundRequest) stopSequences() []string {
	if len(r.StopSequences) > 0 {
		return r.StopSequences
	}
	return r.Stop
}

// HasEmbeddedSystemMessages reports whether any message in Messages
// carries role "system" — used both for the body-rewrite's system-lift
// step and for OpenAI-vs-passthrough format detection.
func (r *InboundRequest) HasEmbeddedSystemMessages() bool {
	for _, m := range r.Messages {
		if m.Role == "system" {
			return true
		}
	}
	return false
}
