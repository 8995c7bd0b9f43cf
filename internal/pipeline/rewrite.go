package pipeline

import "encoding/json"

// personaLine is prepended to the system array unless the client's own
// system prompt already declares it, so first-party CLI clients that
// already identify themselves are left untouched.
const personaLine = "You are Claude Code, Anthropic's CLI for Claude, accessed through this relay."

// SystemBlock mirrors the Messages API's {type:"text", text} system
// array element shape.
type SystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// RewriteResult carries the rewritten conversational messages (with
// embedded system-role entries removed) and the normalized system array.
type RewriteResult struct {
	Messages []InboundMessage
	System   []SystemBlock
}

// RewriteBody merges the request's top-level system field (present on
// native Messages API passthrough requests), lifts any system-role
// messages out of Messages into the system array, prepends the persona
// line unless already present, and returns the remaining conversational
// messages untouched. The top-level field is normalized and ordered
// ahead of any lifted messages, since it represents the original,
// already-structured system prompt.
func RewriteBody(req *InboundRequest) RewriteResult {
	system := normalizeSystemField(req.System)
	var rest []InboundMessage

	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, normalizeSystemField(m.Content)...)
			continue
		}
		rest = append(rest, m)
	}

	if !declaresPersona(system) {
		system = append([]SystemBlock{{Type: "text", Text: personaLine}}, system...)
	}

	return RewriteResult{Messages: rest, System: system}
}

// normalizeSystemField parses a native Messages API top-level "system"
// value into the {type,text} array form: it may arrive as a bare string
// or as an array of content blocks. An empty or unparseable value
// yields no blocks.
func normalizeSystemField(raw json.RawMessage) []SystemBlock {
	trimmed := json.RawMessage(bytesTrimSpace(raw))
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '"' {
		var text string
		if json.Unmarshal(trimmed, &text) == nil && text != "" {
			return []SystemBlock{{Type: "text", Text: text}}
		}
		return nil
	}

	var blocks []SystemBlock
	if err := json.Unmarshal(trimmed, &blocks); err != nil {
		return nil
	}
	return blocks
}

func bytesTrimSpace(raw json.RawMessage) []byte {
	s := string(raw)
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return []byte(s[start:end])
}

func declaresPersona(blocks []SystemBlock) bool {
	for _, b := range blocks {
		if b.Text == personaLine {
			return true
		}
	}
	return false
}
