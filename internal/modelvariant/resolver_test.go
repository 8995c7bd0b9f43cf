package modelvariant

import "testing"

func TestResolve_ExactMatch(t *testing.T) {
	v := Resolve("claude-3-5-sonnet")
	if v.UpstreamModel != "claude-3-5-sonnet-20241022" {
		t.Errorf("UpstreamModel = %q, want exact-match dated alias", v.UpstreamModel)
	}
	if v.Thinking != nil {
		t.Error("base alias should not enable thinking")
	}
	if v.OriginalModel != "claude-3-5-sonnet" {
		t.Errorf("OriginalModel = %q, want original client string preserved", v.OriginalModel)
	}
}

func TestResolve_ExactMatch_CaseInsensitive(t *testing.T) {
	v := Resolve("Claude-3-5-Sonnet")
	if v.UpstreamModel != "claude-3-5-sonnet-20241022" {
		t.Errorf("mixed-case model resolution failed: got %q", v.UpstreamModel)
	}
	if v.OriginalModel != "Claude-3-5-Sonnet" {
		t.Errorf("OriginalModel must preserve the client's original casing, got %q", v.OriginalModel)
	}
}

func TestResolve_ThinkingVariantExactMatch(t *testing.T) {
	v := Resolve("claude-4-opus-thinking")
	if v.Thinking == nil {
		t.Fatal("expected thinking to be enabled")
	}
	if v.Thinking.BudgetTokens != defaultReasoningBudget {
		t.Errorf("BudgetTokens = %d, want %d", v.Thinking.BudgetTokens, defaultReasoningBudget)
	}
	if v.MaxTokens != thinkingMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", v.MaxTokens, thinkingMaxTokens)
	}
	if v.UpstreamModel != "claude-opus-4-20250514" {
		t.Errorf("UpstreamModel = %q, want opus dated model", v.UpstreamModel)
	}
}

func TestResolve_ThinkingHeuristic_UnknownFamilySubstring(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my-claude-opus-thinking-preview", "claude-opus-4-20250514"},
		{"custom-haiku-thinking", "claude-3-5-haiku-20241022"},
		{"some-thinking-alias", "claude-sonnet-4-20250514"},
	}
	for _, tt := range tests {
		v := Resolve(tt.in)
		if v.UpstreamModel != tt.want {
			t.Errorf("Resolve(%q).UpstreamModel = %q, want %q", tt.in, v.UpstreamModel, tt.want)
		}
		if v.Thinking == nil {
			t.Errorf("Resolve(%q) expected thinking heuristic to enable thinking", tt.in)
		}
	}
}

func TestResolve_PassthroughUnknownModel(t *testing.T) {
	v := Resolve("gpt-4o")
	if v.UpstreamModel != "gpt-4o" {
		t.Errorf("UpstreamModel = %q, want passthrough of the client string", v.UpstreamModel)
	}
	if v.Thinking != nil {
		t.Error("passthrough should never enable thinking")
	}
	if v.MaxTokens != passthroughMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", v.MaxTokens, passthroughMaxTokens)
	}
}

func TestResolve_PrefixPassthrough(t *testing.T) {
	v := Resolve("claude-3-7-sonnet-latest")
	if v.UpstreamModel != "claude-3-7-sonnet-latest" {
		t.Errorf("UpstreamModel = %q, want the unmatched claude- prefixed string passed through", v.UpstreamModel)
	}
}

func TestIsClaudeFamily(t *testing.T) {
	tests := map[string]bool{
		"claude-3-5-sonnet":     true,
		"claude-opus-4-20250514": true,
		"ANY-CLAUDE-ALIAS":      true,
		"gpt-4o":                false,
		"gemini-1.5-pro":        false,
	}
	for in, want := range tests {
		if got := IsClaudeFamily(in); got != want {
			t.Errorf("IsClaudeFamily(%q) = %v, want %v", in, got, want)
		}
	}
}
