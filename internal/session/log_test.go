package session

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/pocketomega/codex-core/internal/conversation"
)

func TestWriterRoundTripsMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	w.WriteSessionStart(Info{ID: "s1", WorkspaceRoot: "/repo", ProviderName: "openai", Model: "gpt-4o-mini"})
	w.WriteUserPrompt("list the files")
	calls := []conversation.ToolCall{{CallID: "call_1", ToolName: "ListFiles", ArgsJSON: json.RawMessage(`{"path":"."}`)}}
	w.WriteAssistantMessage("", calls)
	w.WriteToolResultDiagnostic("call_1", "ListFiles", conversation.ToolResult{OK: true})
	w.WriteToolResultMessage("call_1", "ListFiles", conversation.ToolResult{OK: true, Stdout: "a.go\nb.go"})
	w.WriteAssistantMessage("done", nil)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	messages, err := (&Reader{}).ReadMessages(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 reconstructed messages (user, assistant-with-call, tool-result, assistant), got %d", len(messages))
	}
	if messages[0].Role != conversation.RoleUser || messages[0].Text != "list the files" {
		t.Fatalf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != conversation.RoleAssistant || len(messages[1].ToolCalls) != 1 {
		t.Fatalf("unexpected second message: %+v", messages[1])
	}
	if messages[2].Role != conversation.RoleToolResult || messages[2].CallID != "call_1" {
		t.Fatalf("unexpected third message: %+v", messages[2])
	}
	if messages[3].Role != conversation.RoleAssistant || messages[3].Text != "done" {
		t.Fatalf("unexpected fourth message: %+v", messages[3])
	}
}

func TestReaderSkipsDiagnosticOnlyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.WriteSessionStart(Info{ID: "s1"})
	w.WriteToolResultDiagnostic("call_1", "ListFiles", conversation.ToolResult{OK: true})
	w.Close()

	messages, err := (&Reader{}).ReadMessages(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no reconstructed messages from diagnostic-only entries, got %d", len(messages))
	}
}

func TestReaderMissingFileReturnsEmpty(t *testing.T) {
	messages, err := (&Reader{}).ReadMessages(filepath.Join(t.TempDir(), "missing.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if messages != nil {
		t.Fatalf("expected nil messages for a missing log, got %v", messages)
	}
}

func TestReaderSkipsMalformedLinesAndWarns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.WriteUserPrompt("hello")
	w.file.WriteString("not json at all\n")
	w.WriteAssistantMessage("hi", nil)
	w.Close()

	var warnings int
	r := &Reader{OnWarn: func(int, error) { warnings++ }}
	messages, err := r.ReadMessages(path)
	if err != nil {
		t.Fatal(err)
	}
	if warnings != 1 {
		t.Fatalf("expected exactly 1 warning for the malformed line, got %d", warnings)
	}
	if len(messages) != 2 {
		t.Fatalf("expected the 2 valid messages either side of the bad line, got %d", len(messages))
	}
}
