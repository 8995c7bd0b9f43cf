package pipeline

import (
	"encoding/json"
	"testing"
)

func TestRewriteBody_LiftsSystemMessagesAndPrependsPersona(t *testing.T) {
	req := &InboundRequest{Messages: []InboundMessage{
		{Role: "system", Content: json.RawMessage(`"be concise"`)},
		{Role: "user", Content: json.RawMessage(`"hi"`)},
	}}
	result := RewriteBody(req)

	if len(result.Messages) != 1 || result.Messages[0].Role != "user" {
		t.Fatalf("expected system message lifted out, remaining messages = %+v", result.Messages)
	}
	if len(result.System) != 2 {
		t.Fatalf("expected persona line + one lifted system block, got %+v", result.System)
	}
	if result.System[0].Text != personaLine {
		t.Errorf("expected persona line prepended first, got %q", result.System[0].Text)
	}
	if result.System[1].Text != "be concise" {
		t.Errorf("expected lifted system text preserved, got %q", result.System[1].Text)
	}
}

func TestRewriteBody_DoesNotDuplicatePersonaAlreadyDeclared(t *testing.T) {
	req := &InboundRequest{Messages: []InboundMessage{
		{Role: "system", Content: json.RawMessage(`"` + personaLine + `"`)},
		{Role: "user", Content: json.RawMessage(`"hi"`)},
	}}
	result := RewriteBody(req)

	if len(result.System) != 1 {
		t.Fatalf("expected no duplicate persona line, got %+v", result.System)
	}
}

func TestRewriteBody_MergesTopLevelSystemStringField(t *testing.T) {
	req := &InboundRequest{
		System: json.RawMessage(`"you are a careful assistant"`),
		Messages: []InboundMessage{
			{Role: "user", Content: json.RawMessage(`"hi"`)},
		},
	}
	result := RewriteBody(req)

	if len(result.System) != 2 {
		t.Fatalf("expected persona line + top-level system text, got %+v", result.System)
	}
	if result.System[1].Text != "you are a careful assistant" {
		t.Errorf("expected the top-level system field preserved, got %q", result.System[1].Text)
	}
}

func TestRewriteBody_MergesTopLevelSystemArrayField(t *testing.T) {
	req := &InboundRequest{
		System: json.RawMessage(`[{"type":"text","text":"block one"},{"type":"text","text":"block two"}]`),
		Messages: []InboundMessage{
			{Role: "user", Content: json.RawMessage(`"hi"`)},
		},
	}
	result := RewriteBody(req)

	if len(result.System) != 3 {
		t.Fatalf("expected persona line + two top-level system blocks, got %+v", result.System)
	}
	if result.System[1].Text != "block one" || result.System[2].Text != "block two" {
		t.Errorf("expected top-level system blocks preserved in order, got %+v", result.System)
	}
}

func TestRewriteBody_TopLevelSystemOrderedAheadOfEmbeddedSystemMessages(t *testing.T) {
	req := &InboundRequest{
		System: json.RawMessage(`"top-level prompt"`),
		Messages: []InboundMessage{
			{Role: "system", Content: json.RawMessage(`"embedded prompt"`)},
			{Role: "user", Content: json.RawMessage(`"hi"`)},
		},
	}
	result := RewriteBody(req)

	if len(result.System) != 3 {
		t.Fatalf("expected persona + top-level + embedded, got %+v", result.System)
	}
	if result.System[1].Text != "top-level prompt" || result.System[2].Text != "embedded prompt" {
		t.Errorf("expected top-level system ahead of embedded system messages, got %+v", result.System)
	}
}

func TestRewriteBody_NoSystemMessages(t *testing.T) {
	req := &InboundRequest{Messages: []InboundMessage{
		{Role: "user", Content: json.RawMessage(`"hi"`)},
	}}
	result := RewriteBody(req)

	if len(result.Messages) != 1 {
		t.Fatalf("expected the user message preserved untouched, got %+v", result.Messages)
	}
	if len(result.System) != 1 || result.System[0].Text != personaLine {
		t.Fatalf("expected the persona line synthesized alone, got %+v", result.System)
	}
}
