package thinkingcache

import (
	"encoding/json"
	"testing"
)

func TestKey_StableAcrossWhitespaceVariation(t *testing.T) {
	a := json.RawMessage(`"hello   world"`)
	b := json.RawMessage(`"hello world"`)
	if Key(a) != Key(b) {
		t.Errorf("Key should normalize internal whitespace runs: Key(a)=%q Key(b)=%q", Key(a), Key(b))
	}
}

func TestKey_ExcludesThinkingBlocks(t *testing.T) {
	withThinking := json.RawMessage(`[{"type":"thinking","thinking":"reasoning","signature":"sig"},{"type":"text","text":"answer"}]`)
	withoutThinking := json.RawMessage(`[{"type":"text","text":"answer"}]`)

	if Key(withThinking) != Key(withoutThinking) {
		t.Errorf("Key(content) must be identical before/after a thinking block is stripped: %q vs %q", Key(withThinking), Key(withoutThinking))
	}
}

func TestKey_RoundTripLaw_PrependThenStripYieldsSameKey(t *testing.T) {
	original := json.RawMessage(`[{"type":"text","text":"answer"}]`)
	prepended := json.RawMessage(`[{"type":"thinking","thinking":"t","signature":"s"},{"type":"text","text":"answer"}]`)
	if Key(original) != Key(prepended) {
		t.Errorf("key(content) != key(strip_thinking(prepend_thinking(content))): %q vs %q", Key(original), Key(prepended))
	}
}

func TestKey_ToolUseInputOrderIndependent(t *testing.T) {
	a := json.RawMessage(`[{"type":"tool_use","name":"get_weather","input":{"city":"SF","unit":"c"}}]`)
	b := json.RawMessage(`[{"type":"tool_use","name":"get_weather","input":{"unit":"c","city":"SF"}}]`)
	if Key(a) != Key(b) {
		t.Errorf("tool_use input key derivation must be field-order independent: %q vs %q", Key(a), Key(b))
	}
}

func TestKey_DiffersOnDifferentContent(t *testing.T) {
	a := json.RawMessage(`"hello"`)
	b := json.RawMessage(`"goodbye"`)
	if Key(a) == Key(b) {
		t.Error("distinct content must not collide onto the same key")
	}
}

func TestKey_BareStringAndSingleTextBlockCollide(t *testing.T) {
	bare := json.RawMessage(`"hello world"`)
	blockForm := json.RawMessage(`[{"type":"text","text":"hello world"}]`)
	if Key(bare) != Key(blockForm) {
		t.Errorf("a bare string and an equivalent single text block should key identically: %q vs %q", Key(bare), Key(blockForm))
	}
}
