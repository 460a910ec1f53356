package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/provider"
)

func TestNormalizeStopReason(t *testing.T) {
	cases := map[string]string{
		"end_turn":      "end_turn",
		"stop_sequence": "end_turn",
		"max_tokens":    "max_tokens",
		"tool_use":      "tool_use",
	}
	for in, want := range cases {
		if got := normalizeStopReason(in); got != want {
			t.Errorf("normalizeStopReason(%q) = %q, want %q", in, got, want)
		}
	}
	if !provider.IsTerminal("end_turn") {
		t.Fatal("expected end_turn to be terminal")
	}
	if provider.IsTerminal("tool_use") || provider.IsTerminal("max_tokens") {
		t.Fatal("expected tool_use/max_tokens to be non-terminal")
	}
}

func TestMaxTokensOrDefault(t *testing.T) {
	if got := maxTokensOrDefault(0); got != defaultMaxTokens {
		t.Fatalf("expected default %d, got %d", defaultMaxTokens, got)
	}
	if got := maxTokensOrDefault(-5); got != defaultMaxTokens {
		t.Fatalf("expected default for negative input, got %d", got)
	}
	if got := maxTokensOrDefault(2048); got != 2048 {
		t.Fatalf("expected passthrough of explicit value, got %d", got)
	}
}

func TestToMessageParamsTranslatesAllThreeRoles(t *testing.T) {
	messages := []conversation.Message{
		conversation.NewUserMessage("fix the bug"),
		conversation.NewAssistantMessage("looking", []conversation.ToolCall{
			{CallID: "call_1", ToolName: "ReadFile", ArgsJSON: json.RawMessage(`{"path":"a.go"}`)},
		}),
		conversation.NewToolResultMessage("call_1", "ReadFile", conversation.ToolResult{OK: true, Stdout: "package main"}),
	}

	params, err := toMessageParams(messages)
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params))
	}
}

func TestResultTextFallsBackThroughDataStdoutOK(t *testing.T) {
	if got := resultText(conversation.ToolResult{OK: true}); got != "OK" {
		t.Fatalf("expected literal OK for an empty successful result, got %q", got)
	}
	if got := resultText(conversation.ToolResult{OK: true, Stdout: "hi"}); got != "hi" {
		t.Fatalf("expected stdout fallback, got %q", got)
	}
	if got := resultText(conversation.ToolResult{OK: false, Stderr: "boom"}); got != "boom" {
		t.Fatalf("expected stderr on failure, got %q", got)
	}
	if got := resultText(conversation.ToolResult{OK: false, Diagnostics: []conversation.ToolDiagnostic{{Message: "bad args"}}}); got != "bad args" {
		t.Fatalf("expected first diagnostic message, got %q", got)
	}
}

func TestToVendorToolSubstitutesEmptySchemaOnParseFailure(t *testing.T) {
	tool, err := toVendorTool(provider.ToolDescriptor{Name: "Broken", Description: "desc", InputSchema: "not json"})
	if err != nil {
		t.Fatal(err)
	}
	if tool.OfTool == nil {
		t.Fatal("expected OfTool to be populated")
	}
}
