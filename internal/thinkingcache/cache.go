package thinkingcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// ThinkingBlock is the opaque, cryptographically signed reasoning
// artifact this cache stores and replays verbatim. The proxy never
// modifies, re-signs, or reorders it. Type distinguishes a plain
// "thinking" block from a "redacted_thinking" one, whose payload lives
// in Data rather than Thinking/Signature; an empty Type is treated as
// "thinking" for entries written before this field existed.
type ThinkingBlock struct {
	Type      string `json:"type,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Entry is what gets stored under a content-derived key.
type Entry struct {
	Thinking  ThinkingBlock `json:"thinking_block"`
	Timestamp int64         `json:"timestamp"` // unix ms
}

// RemoteTier is the persistent (remote) tier's interface: a small
// get/setex key-value surface, implemented over Upstash Redis REST by
// remote.go.
type RemoteTier interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttlSeconds int) error
}

// Cache is the two-tier thinking-block cache: a bounded in-process map
// (fast tier) plus an optional remote persistent tier. Injection is the
// only way thinking blocks are added to historical messages.
type Cache struct {
	mu       sync.Mutex
	local    map[string]Entry
	localCap int
	remote   RemoteTier // nil => local-only, degraded but functional
	ttl      time.Duration
}

// New creates a Cache. remote may be nil (no persistent tier configured).
func New(localCap int, ttl time.Duration, remote RemoteTier) *Cache {
	if localCap <= 0 {
		localCap = 100
	}
	return &Cache{
		local:    make(map[string]Entry, localCap),
		localCap: localCap,
		remote:   remote,
		ttl:      ttl,
	}
}

// HasPersistentTier reports whether a remote tier is configured.
func (c *Cache) HasPersistentTier() bool {
	return c.remote != nil
}

// get looks up key: local hit returns immediately; a remote hit
// back-fills local.
func (c *Cache) get(ctx context.Context, key string) (Entry, bool) {
	c.mu.Lock()
	if e, ok := c.local[key]; ok {
		c.mu.Unlock()
		return e, true
	}
	c.mu.Unlock()

	if c.remote == nil {
		return Entry{}, false
	}

	raw, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		slog.Warn("thinkingcache.remote_read_failed", "error", err) // CacheDegraded: logged, not propagated
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, false
	}

	c.mu.Lock()
	c.insertLocked(key, e)
	c.mu.Unlock()
	return e, true
}

// write stores entry under key in both tiers. The remote write is
// fire-and-forget relative to correctness (failure is logged only) but
// is issued synchronously here — callers that want true
// cancellation-safe fire-and-forget spawn this in their own goroutine,
// as the request pipeline does after a stream closes.
func (c *Cache) write(ctx context.Context, key string, e Entry) {
	c.mu.Lock()
	c.insertLocked(key, e)
	c.mu.Unlock()

	if c.remote == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	ttlSeconds := int(c.ttl / time.Second)
	if err := c.remote.SetEx(ctx, key, string(data), ttlSeconds); err != nil {
		slog.Warn("thinkingcache.remote_write_failed", "error", err) // CacheDegraded
	}
}

// insertLocked evicts the oldest entry by timestamp when the local tier
// is at capacity, then inserts. Caller holds c.mu.
func (c *Cache) insertLocked(key string, e Entry) {
	if _, exists := c.local[key]; !exists && len(c.local) >= c.localCap {
		var oldestKey string
		var oldestTS int64
		first := true
		for k, v := range c.local {
			if first || v.Timestamp < oldestTS {
				oldestKey, oldestTS = k, v.Timestamp
				first = false
			}
		}
		if oldestKey != "" {
			delete(c.local, oldestKey)
		}
	}
	c.local[key] = e
}

// WriteForMessage derives the canonical key for an assistant's
// non-thinking content (a text block built from accumulated text, plus
// any tool_use blocks) and stores block under it. An empty canonical
// content (no text, no tool_use) is not cached, since there is no stable
// key for it.
func (c *Cache) WriteForMessage(ctx context.Context, canonicalContent json.RawMessage, block ThinkingBlock) {
	if canonicalize(canonicalContent) == "" {
		return
	}
	key := Key(canonicalContent)
	c.write(ctx, key, Entry{Thinking: block, Timestamp: time.Now().UnixMilli()})
}

// InjectResult reports the outcome of Inject.
type InjectResult struct {
	InjectedCount int
	MissingCount  int
	CanUseThinking bool
}

// Message is the minimal shape Inject needs: a role and raw content.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Inject walks messages in order and, for each assistant message whose
// content does not already begin with a thinking block, looks it up by its content
// key and prepends the cached block when found. It is the only function
// in this module that adds thinking blocks to historical messages.
// Messages are mutated in place (their Content field is replaced when a
// block is prepended).
func (c *Cache) Inject(ctx context.Context, messages []*Message) InjectResult {
	result := InjectResult{CanUseThinking: true}

	for _, m := range messages {
		if m.Role != "assistant" {
			continue
		}

		blocks, isArray := parseBlocks(m.Content)
		if isArray && len(blocks) > 0 && blocks[0].IsThinking() {
			continue // already has one, leading
		}

		key := Key(m.Content)
		entry, ok := c.get(ctx, key)
		if !ok {
			result.MissingCount++
			result.CanUseThinking = false
			continue
		}

		blockType := entry.Thinking.Type
		if blockType == "" {
			blockType = "thinking"
		}
		prepended := append([]ContentBlock{{
			Type:      blockType,
			Thinking:  entry.Thinking.Thinking,
			Signature: entry.Thinking.Signature,
			Data:      entry.Thinking.Data,
		}}, blocks...)
		newContent, err := json.Marshal(prepended)
		if err != nil {
			result.MissingCount++
			result.CanUseThinking = false
			continue
		}
		m.Content = newContent
		result.InjectedCount++
	}

	return result
}

// parseBlocks normalizes m.Content (string or array form) into a block
// list, treating a bare string as a single text block for re-marshaling
// purposes. The bool reports whether the original content was already
// in array form (vs. the synthesized single-text-block form).
func parseBlocks(content json.RawMessage) ([]ContentBlock, bool) {
	trimmed := []byte(trimSpaceJSON(content))
	if len(trimmed) == 0 {
		return nil, false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(content, &s); err == nil {
			return []ContentBlock{{Type: "text", Text: s}}, false
		}
		return nil, false
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

func trimSpaceJSON(raw json.RawMessage) string {
	s := string(raw)
	start, end := 0, len(s)
	for start < end && isJSONSpace(s[start]) {
		start++
	}
	for end > start && isJSONSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
