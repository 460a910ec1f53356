package openai

import (
	"encoding/json"
	"testing"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/provider"
)

func intPtr(i int) *int { return &i }

func TestToolCallTrackerEmitsStartedThenReady(t *testing.T) {
	tr := newToolCallTracker()

	ev1 := tr.ingest(openailib.ToolCall{
		Index:    intPtr(0),
		ID:       "call_1",
		Function: openailib.FunctionCall{Name: "ReadFile"},
	})
	if len(ev1) != 1 || ev1[0].Kind != provider.KindToolCallStarted {
		t.Fatalf("expected a single tool_call_started, got %+v", ev1)
	}

	ev2 := tr.ingest(openailib.ToolCall{
		Index:    intPtr(0),
		Function: openailib.FunctionCall{Arguments: `{"path":`},
	})
	if len(ev2) != 1 || ev2[0].Kind != provider.KindToolCallArgsDelta {
		t.Fatalf("expected a single args_delta, got %+v", ev2)
	}

	ev3 := tr.ingest(openailib.ToolCall{
		Index:    intPtr(0),
		Function: openailib.FunctionCall{Arguments: `"a.go"}`},
	})
	if len(ev3) != 1 || ev3[0].Kind != provider.KindToolCallArgsDelta {
		t.Fatalf("expected a second args_delta, got %+v", ev3)
	}

	ready := tr.flush()
	if len(ready) != 1 || ready[0].Kind != provider.KindToolCallReady {
		t.Fatalf("expected exactly one tool_call_ready, got %+v", ready)
	}
	if ready[0].ArgsJSON != `{"path":"a.go"}` {
		t.Fatalf("unexpected args_json: %q", ready[0].ArgsJSON)
	}
	if ready[0].CallID != "call_1" || ready[0].ToolName != "ReadFile" {
		t.Fatalf("unexpected call identity: %+v", ready[0])
	}
}

func TestToolCallTrackerFlushWithNoFragmentsUsesEmptyObject(t *testing.T) {
	tr := newToolCallTracker()
	tr.ingest(openailib.ToolCall{Index: intPtr(0), ID: "call_2", Function: openailib.FunctionCall{Name: "ListFiles"}})

	ready := tr.flush()
	if len(ready) != 1 {
		t.Fatalf("expected one ready event, got %d", len(ready))
	}
	if ready[0].ArgsJSON != "{}" {
		t.Fatalf("expected {} for a call with no argument fragments, got %q", ready[0].ArgsJSON)
	}
}

func TestNormalizeStopReason(t *testing.T) {
	cases := map[string]string{
		"stop":           "stop",
		"":               "stop",
		"length":         "length",
		"tool_calls":     "tool_calls",
		"content_filter": "content_filter",
	}
	for in, want := range cases {
		if got := normalizeStopReason(in); got != want {
			t.Errorf("normalizeStopReason(%q) = %q, want %q", in, got, want)
		}
	}
	if !provider.IsTerminal("stop") || !provider.IsTerminal("end_turn") {
		t.Fatal("expected stop and end_turn to be terminal")
	}
	if provider.IsTerminal("length") || provider.IsTerminal("tool_calls") {
		t.Fatal("expected length/tool_calls to be non-terminal")
	}
}

func TestToChatRequestTranslatesAllThreeRoles(t *testing.T) {
	req := provider.ModelRequest{
		Model:        "gpt-4o",
		SystemPrompt: "be terse",
		Messages: []conversation.Message{
			conversation.NewUserMessage("fix the bug"),
			conversation.NewAssistantMessage("looking", []conversation.ToolCall{
				{CallID: "call_1", ToolName: "ReadFile", ArgsJSON: json.RawMessage(`{"path":"a.go"}`)},
			}),
			conversation.NewToolResultMessage("call_1", "ReadFile", conversation.ToolResult{OK: true, Stdout: "package main"}),
		},
	}

	creq := toChatRequest(req)
	if len(creq.Messages) != 4 {
		t.Fatalf("expected system + 3 messages, got %d", len(creq.Messages))
	}
	if creq.Messages[0].Role != openailib.ChatMessageRoleSystem {
		t.Fatalf("expected first message to be system, got %s", creq.Messages[0].Role)
	}
	if creq.Messages[2].ToolCalls[0].Function.Name != "ReadFile" {
		t.Fatalf("expected assistant tool call to carry ReadFile")
	}
	if creq.Messages[3].Role != openailib.ChatMessageRoleTool || creq.Messages[3].Content != "package main" {
		t.Fatalf("expected tool result content to fall back to stdout, got %+v", creq.Messages[3])
	}
}

func TestToolDescriptorToVendorFallsBackToEmptySchemaOnParseFailure(t *testing.T) {
	tl := toolDescriptorToVendor(provider.ToolDescriptor{Name: "Broken", InputSchema: "not json"})
	if tl.Function.Parameters.(map[string]any) == nil {
		t.Fatal("expected a non-nil empty parameters map")
	}
}
