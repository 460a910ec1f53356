// Package session implements the append-only JSONL session log, its reader
// for conversation reconstruction, and the server runtime that multiplexes
// an orchestrator loop over a session id.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/provider"
)

// logLine is the on-disk shape of every line: {timestamp, data}. data's own
// "type" field discriminates the payload; the writer never needs a closed
// Go type for it since most payload kinds are diagnostic-only (readers may
// ignore them).
type logLine struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// toolCallPayload mirrors conversation.ToolCall for the on-disk wire shape
// (callId/name/argsJson).
type toolCallPayload struct {
	CallID   string          `json:"callId"`
	Name     string          `json:"name"`
	ArgsJSON json.RawMessage `json:"argsJson"`
}

type messagePayload struct {
	Type      string                  `json:"type"`
	Role      string                  `json:"role"`
	Content   *string                 `json:"content,omitempty"`
	ToolCalls []toolCallPayload       `json:"toolCalls,omitempty"`
	CallID    string                  `json:"callId,omitempty"`
	ToolName  string                  `json:"toolName,omitempty"`
	Result    *conversation.ToolResult `json:"result,omitempty"`
}

// Writer appends newline-delimited JSON log lines to a single file.
// Thread-safe: every Write call is serialized by mu and flushed
// immediately, so callers may write concurrently.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// OpenWriter opens (creating parent directories and the file if needed) the
// log for appending.
func OpenWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session: creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: opening log %s: %w", path, err)
	}
	return &Writer{file: f}, nil
}

// writeLine marshals data, appends one JSON line, and flushes. A
// serialization failure is itself recorded as a synthetic error entry
// rather than raised to the caller — the log must never be the reason an
// orchestrator run aborts.
func (w *Writer) writeLine(data any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	line := logLine{Timestamp: time.Now().UTC(), Data: data}
	encoded, err := json.Marshal(line)
	if err != nil {
		fallback := logLine{Timestamp: time.Now().UTC(), Data: map[string]string{
			"type": "log_error", "message": fmt.Sprintf("failed to serialize entry: %v", err),
		}}
		encoded, _ = json.Marshal(fallback)
	}
	w.file.Write(encoded)
	w.file.Write([]byte("\n"))
	w.file.Sync()
}

// WriteUserPrompt records the raw prompt text (diagnostic) and the
// conversation-reconstructible user message.
func (w *Writer) WriteUserPrompt(text string) {
	w.writeLine(map[string]string{"type": "user_prompt", "content": text})
	content := text
	w.writeLine(messagePayload{Type: "message", Role: "user", Content: &content})
}

// WriteAssistantMessage records an assistant turn: optional text, optional
// ordered tool calls.
func (w *Writer) WriteAssistantMessage(text string, calls []conversation.ToolCall) {
	var content *string
	if text != "" {
		content = &text
	}
	var payloadCalls []toolCallPayload
	for _, c := range calls {
		args := c.ArgsJSON
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		payloadCalls = append(payloadCalls, toolCallPayload{CallID: c.CallID, Name: c.ToolName, ArgsJSON: args})
	}
	w.writeLine(messagePayload{Type: "message", Role: "assistant", Content: content, ToolCalls: payloadCalls})
}

// WriteToolResultMessage records the conversation-reconstructible tool
// result message.
func (w *Writer) WriteToolResultMessage(callID, toolName string, result conversation.ToolResult) {
	r := result
	w.writeLine(messagePayload{Type: "message", Role: "tool", CallID: callID, ToolName: toolName, Result: &r})
}

// WriteToolResultDiagnostic records the diagnostic tool_result summary
// entry; readers other than the conversation reconstructor may ignore it.
func (w *Writer) WriteToolResultDiagnostic(callID, toolName string, result conversation.ToolResult) {
	w.writeLine(map[string]any{
		"type": "tool_result", "callId": callID, "tool": toolName,
		"ok": result.OK, "diagnostics": result.Diagnostics,
	})
}

// WriteEvent records a raw normalized provider event as a diagnostic entry.
func (w *Writer) WriteEvent(ev provider.Event) {
	w.writeLine(map[string]any{
		"type": "event", "kind": ev.Kind, "callId": ev.CallID, "toolName": ev.ToolName,
		"text": ev.Text, "stopReason": ev.StopReason, "traceKind": ev.TraceKind,
	})
}

// WriteSessionStart records the session_start diagnostic entry, once, when
// a session is created or resumed.
func (w *Writer) WriteSessionStart(info Info) {
	w.writeLine(map[string]any{
		"type": "session_start", "id": info.ID, "workspaceRoot": info.WorkspaceRoot,
		"provider": info.ProviderName, "model": info.Model, "createdAt": info.CreatedAt,
	})
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Reader reconstructs the message sequence from a session log.
type Reader struct {
	// OnWarn is invoked once per line that fails to parse. Nil is fine —
	// the reader just skips silently.
	OnWarn func(lineNo int, err error)
}

// ReadMessages parses every line of path, skipping non-"message" payloads
// and any line that fails to parse (reported through OnWarn and skipped —
// the reader never aborts the whole file).
func (r *Reader) ReadMessages(path string) ([]conversation.Message, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: opening log %s: %w", path, err)
	}
	defer f.Close()

	var messages []conversation.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, ok, err := parseMessageLine(line)
		if err != nil {
			r.warn(lineNo, err)
			continue
		}
		if ok {
			messages = append(messages, msg)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return messages, fmt.Errorf("session: scanning log %s: %w", path, err)
	}
	return messages, nil
}

func (r *Reader) warn(lineNo int, err error) {
	if r.OnWarn != nil {
		r.OnWarn(lineNo, err)
	}
}

func parseMessageLine(line []byte) (conversation.Message, bool, error) {
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return conversation.Message{}, false, fmt.Errorf("parsing log line: %w", err)
	}
	var typeProbe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw.Data, &typeProbe); err != nil {
		return conversation.Message{}, false, fmt.Errorf("parsing log line data: %w", err)
	}
	if typeProbe.Type != "message" {
		return conversation.Message{}, false, nil
	}
	var payload messagePayload
	if err := json.Unmarshal(raw.Data, &payload); err != nil {
		return conversation.Message{}, false, fmt.Errorf("parsing message payload: %w", err)
	}

	switch payload.Role {
	case "user":
		content := ""
		if payload.Content != nil {
			content = *payload.Content
		}
		return conversation.NewUserMessage(content), true, nil
	case "assistant":
		content := ""
		if payload.Content != nil {
			content = *payload.Content
		}
		var calls []conversation.ToolCall
		for _, c := range payload.ToolCalls {
			calls = append(calls, conversation.ToolCall{CallID: c.CallID, ToolName: c.Name, ArgsJSON: c.ArgsJSON})
		}
		return conversation.NewAssistantMessage(content, calls), true, nil
	case "tool":
		var result conversation.ToolResult
		if payload.Result != nil {
			result = *payload.Result
		}
		return conversation.NewToolResultMessage(payload.CallID, payload.ToolName, result), true, nil
	default:
		return conversation.Message{}, false, fmt.Errorf("unknown message role %q", payload.Role)
	}
}
