// Package thinkingcache persists cryptographically-signed reasoning
// blocks keyed by the non-thinking content of the assistant message they
// accompany, so multi-turn conversations with extended thinking can be
// reconstructed after a client strips the thinking blocks from history.
package thinkingcache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
)

// ContentBlock mirrors the wire shape of an Anthropic content block, as
// far as the cache's key derivation and re-injection need it.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking / redacted_thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

func (b ContentBlock) IsThinking() bool {
	return b.Type == "thinking" || b.Type == "redacted_thinking"
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Key derives the cache key for an assistant message's content. Content
// may be a bare string (JSON string) or an ordered list of ContentBlocks
// (JSON array); both forms are handled since either can arrive on the
// wire. The key deliberately excludes thinking blocks so a message looks
// the same before and after a client strips them, and folds in the
// content length to reduce collisions on short inputs.
func Key(content json.RawMessage) string {
	canonical := canonicalize(content)
	h := fnv.New32a()
	_, _ = h.Write([]byte(canonical))
	return fmt.Sprintf("v2:%d:%d", h.Sum32(), len(canonical))
}

func canonicalize(content json.RawMessage) string {
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return ""
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(content, &s); err == nil {
			return normalize(s)
		}
		return normalize(trimmed)
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return normalize(trimmed)
	}

	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "thinking", "redacted_thinking":
			continue
		case "text":
			parts = append(parts, b.Text)
		case "tool_use":
			parts = append(parts, fmt.Sprintf("tool:%s:%s", b.Name, stableJSON(b.Input)))
		case "tool_result":
			parts = append(parts, fmt.Sprintf("result:%s:%s", b.ToolUseID, contentAsString(b.Content)))
		}
	}
	return normalize(strings.Join(parts, "|"))
}

func normalize(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// stableJSON re-marshals v with object keys sorted, so that structurally
// identical tool_use inputs key identically regardless of field order.
func stableJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(sortKeys(v))
	if err != nil {
		return string(raw)
	}
	return string(b)
}

func sortKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			out = append(out, kv{k, sortKeys(val[k])})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return val
	}
}

// kv/orderedMap implement deterministic object-key ordering in the
// marshaled output, since encoding/json sorts map[string]interface{}
// keys alphabetically anyway — this makes that guarantee explicit rather
// than relying on an incidental stdlib behavior.
type kv struct {
	Key   string
	Value interface{}
}
type orderedMap []kv

func (o orderedMap) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func contentAsString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
