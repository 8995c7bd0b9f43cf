// Package modelvariant resolves a client-supplied model string into the
// upstream model, token budget, and thinking configuration the request
// pipeline needs to build an upstream body.
package modelvariant

import "strings"

// Thinking describes an enabled extended-thinking budget. A nil
// *Thinking on Variant means thinking is off for that variant.
type Thinking struct {
	BudgetTokens int
}

// Variant is the resolved configuration for one model alias.
type Variant struct {
	UpstreamModel string
	MaxTokens     int
	Thinking      *Thinking
	OriginalModel string // the unmodified client string, always preserved
}

const (
	defaultReasoningBudget = 16000
	thinkingMaxTokens      = 64000
	passthroughMaxTokens   = 8192

	upstreamModelPrefix = "claude-"
)

// table is the built-in exact-match variant table, seeded with the
// named aliases a client is likely to send verbatim.
var table = map[string]Variant{
	"claude-3-5-sonnet": {UpstreamModel: "claude-3-5-sonnet-20241022", MaxTokens: passthroughMaxTokens},
	"claude-3-5-haiku":  {UpstreamModel: "claude-3-5-haiku-20241022", MaxTokens: passthroughMaxTokens},
	"claude-4-sonnet":   {UpstreamModel: "claude-sonnet-4-20250514", MaxTokens: passthroughMaxTokens},
	"claude-4-opus":     {UpstreamModel: "claude-opus-4-20250514", MaxTokens: passthroughMaxTokens},

	"claude-3-5-sonnet-thinking": {
		UpstreamModel: "claude-3-5-sonnet-20241022",
		MaxTokens:     thinkingMaxTokens,
		Thinking:      &Thinking{BudgetTokens: defaultReasoningBudget},
	},
	"claude-3-5-haiku-thinking": {
		UpstreamModel: "claude-3-5-haiku-20241022",
		MaxTokens:     thinkingMaxTokens,
		Thinking:      &Thinking{BudgetTokens: defaultReasoningBudget},
	},
	"claude-4-sonnet-thinking": {
		UpstreamModel: "claude-sonnet-4-20250514",
		MaxTokens:     thinkingMaxTokens,
		Thinking:      &Thinking{BudgetTokens: defaultReasoningBudget},
	},
	"claude-4-opus-thinking": {
		UpstreamModel: "claude-opus-4-20250514",
		MaxTokens:     thinkingMaxTokens,
		Thinking:      &Thinking{BudgetTokens: defaultReasoningBudget},
	},
}

// Resolve implements the four-step resolution order over a
// client-supplied model string.
func Resolve(clientModel string) Variant {
	normalized := strings.ToLower(strings.TrimSpace(clientModel))

	// 1. Exact match.
	if v, ok := table[normalized]; ok {
		v.OriginalModel = clientModel
		return v
	}

	// 2. Thinking heuristic: substring match on family, max tokens bumped.
	if strings.Contains(normalized, "thinking") {
		base := "claude-sonnet-4-20250514"
		switch {
		case strings.Contains(normalized, "opus"):
			base = "claude-opus-4-20250514"
		case strings.Contains(normalized, "haiku"):
			base = "claude-3-5-haiku-20241022"
		}
		return Variant{
			UpstreamModel: base,
			MaxTokens:     thinkingMaxTokens,
			Thinking:      &Thinking{BudgetTokens: defaultReasoningBudget},
			OriginalModel: clientModel,
		}
	}

	// 3 & 4. Prefix passthrough, or default passthrough — same defaults.
	upstream := clientModel
	if !strings.HasPrefix(normalized, upstreamModelPrefix) {
		upstream = clientModel
	}
	return Variant{
		UpstreamModel: upstream,
		MaxTokens:     passthroughMaxTokens,
		OriginalModel: clientModel,
	}
}

// IsClaudeFamily reports whether model (normalized) looks like a
// Claude-family identifier, used by the selective-gateway rule.
func IsClaudeFamily(model string) bool {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if _, ok := table[normalized]; ok {
		return true
	}
	return strings.HasPrefix(normalized, upstreamModelPrefix) || strings.Contains(normalized, "claude")
}
