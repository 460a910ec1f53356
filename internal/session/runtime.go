package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pocketomega/codex-core/internal/approval"
	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/orchestrator"
	"github.com/pocketomega/codex-core/internal/policy"
	"github.com/pocketomega/codex-core/internal/provider"
	"github.com/pocketomega/codex-core/internal/tool"
	"github.com/pocketomega/codex-core/internal/workspace"
)

// Info is (id, workspace_root, provider_name, model, created_at).
type Info struct {
	ID            string    `json:"id"`
	WorkspaceRoot string    `json:"workspaceRoot"`
	ProviderName  string    `json:"provider"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LogPath returns the per-session log path, <repo_root>/.agent/session_<id>.jsonl.
func LogPath(repoRoot, id string) string {
	return filepath.Join(repoRoot, ".agent", fmt.Sprintf("session_%s.jsonl", id))
}

// IndexPath returns the session index file, <repo_root>/.agent/sessions.jsonl.
func IndexPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".agent", "sessions.jsonl")
}

// appendIndexRecord appends one record to the session index file. Best
// effort: the caller ignores a returned error, so a failure is never fatal.
func appendIndexRecord(repoRoot string, info Info, event string) error {
	w, err := OpenWriter(IndexPath(repoRoot))
	if err != nil {
		return err
	}
	defer w.Close()
	w.writeLine(map[string]any{
		"type": event, "id": info.ID, "workspaceRoot": info.WorkspaceRoot,
		"provider": info.ProviderName, "model": info.Model, "createdAt": info.CreatedAt,
	})
	return nil
}

// Runtime owns everything one session needs to run orchestrator turns:
// the agent options, tool registry, provider adapter, policy engine,
// log writer, approval arbitrator, accumulated messages, and the
// server-facing event channel. A run mutex serializes concurrent chat
// requests for the same session: execution is single-threaded cooperative
// within a session, parallel only across sessions.
type Runtime struct {
	Info Info

	Options      orchestrator.Options
	Registry     *tool.Registry
	Adapter      provider.Adapter
	PolicyEngine *policy.Engine
	Guard        *workspace.Guard
	Approver     *approval.Server
	Writer       *Writer

	runMu    sync.Mutex
	msgMu    sync.Mutex
	messages []conversation.Message

	events    chan ServerEvent
	streamMu  sync.Mutex
	streaming bool
}

// NewRuntime constructs a Runtime. messages seeds the conversation (nil for
// a fresh session, the reconstructed log for a resume).
func NewRuntime(info Info, opts orchestrator.Options, registry *tool.Registry, adapter provider.Adapter, policyEngine *policy.Engine, guard *workspace.Guard, writer *Writer, messages []conversation.Message) *Runtime {
	rt := &Runtime{
		Info:         info,
		Options:      opts,
		Registry:     registry,
		Adapter:      adapter,
		PolicyEngine: policyEngine,
		Guard:        guard,
		Writer:       writer,
		messages:     messages,
		events:       make(chan ServerEvent, 256),
	}
	rt.Approver = approval.NewServer(func(req approval.Request) {
		rt.emit(ServerEvent{Type: EventApprovalRequired, CallID: req.CallID, ToolName: req.ToolName, ArgsJSON: string(req.ArgsJSON), Reason: req.Reason})
	})
	return rt
}

// Messages returns a snapshot of the current conversation.
func (rt *Runtime) Messages() []conversation.Message {
	rt.msgMu.Lock()
	defer rt.msgMu.Unlock()
	out := make([]conversation.Message, len(rt.messages))
	copy(out, rt.messages)
	return out
}

// Events returns the event channel the SSE handler reads from. It holds at
// most 256 events; while it is full, emit drops new events instead of
// queueing them. The channel is never closed by the runtime; it lives for
// the process lifetime of the session.
func (rt *Runtime) Events() <-chan ServerEvent { return rt.events }

func (rt *Runtime) emit(ev ServerEvent) {
	select {
	case rt.events <- ev:
	default:
		// A full buffer means no reader is draining the channel (none has
		// connected yet, or the last one disconnected). The event is dropped
		// rather than blocking the runner — the writer never blocks on the
		// reader.
	}
}

// AcquireStream claims the single-reader slot for the SSE endpoint. Returns
// false (409 at the HTTP layer) if already held.
func (rt *Runtime) AcquireStream() bool {
	rt.streamMu.Lock()
	defer rt.streamMu.Unlock()
	if rt.streaming {
		return false
	}
	rt.streaming = true
	return true
}

// ReleaseStream frees the single-reader slot on disconnect.
func (rt *Runtime) ReleaseStream() {
	rt.streamMu.Lock()
	defer rt.streamMu.Unlock()
	rt.streaming = false
}

// Run drives one orchestrator loop for userPrompt, mirroring every
// normalized event and tool result to the session log, and text deltas,
// ready tool calls, traces, completions and tool results to the event
// channel. runMu serializes concurrent chat requests for the same session.
func (rt *Runtime) Run(ctx context.Context, userPrompt string) string {
	rt.runMu.Lock()
	defer rt.runMu.Unlock()

	rt.Writer.WriteUserPrompt(userPrompt)

	execCtx := tool.ExecContext{RepoRoot: rt.Options.RepoRoot, Guard: rt.Guard, Approver: rt.Approver}

	onEvent := func(ev provider.Event) {
		rt.Writer.WriteEvent(ev)
		switch ev.Kind {
		case provider.KindTextDelta:
			rt.emit(ServerEvent{Type: EventTextDelta, Text: ev.Text})
		case provider.KindToolCallReady:
			rt.emit(ServerEvent{Type: EventToolCall, CallID: ev.CallID, ToolName: ev.ToolName, ArgsJSON: ev.ArgsJSON})
		case provider.KindTrace:
			rt.emit(ServerEvent{Type: EventTrace, Message: ev.Raw})
		case provider.KindResponseCompleted:
			rt.emit(ServerEvent{Type: EventCompleted, Text: ev.StopReason})
		}
	}
	onToolResult := func(callID, toolName string, result conversation.ToolResult) {
		rt.Writer.WriteToolResultDiagnostic(callID, toolName, result)
		r := result
		rt.emit(ServerEvent{Type: EventToolResult, CallID: callID, ToolName: toolName, Result: &r})
	}

	rt.msgMu.Lock()
	messages := append([]conversation.Message(nil), rt.messages...)
	rt.msgMu.Unlock()

	updated, reportLine := orchestrator.RunPrompt(ctx, userPrompt, messages, rt.Options, rt.Adapter, rt.Registry, rt.PolicyEngine, execCtx, onEvent, onToolResult)

	// Written in final conversation order (after the loop, not per-event) so
	// each Assistant message's Tool result messages always follow it on
	// disk even though the run itself may have taken several turns.
	rt.msgMu.Lock()
	for _, m := range updated[len(messages):] {
		switch m.Role {
		case conversation.RoleAssistant:
			rt.Writer.WriteAssistantMessage(m.Text, m.ToolCalls)
		case conversation.RoleToolResult:
			rt.Writer.WriteToolResultMessage(m.CallID, m.ToolName, m.Result)
		}
	}
	rt.messages = updated
	rt.msgMu.Unlock()

	if reportLine != "" {
		rt.emit(ServerEvent{Type: EventCompleted, Message: reportLine})
	}
	return reportLine
}

// EventKind is the closed set of server event variants the SSE endpoint
// streams to its subscriber.
type EventKind string

const (
	EventTextDelta        EventKind = "text_delta"
	EventToolCall         EventKind = "tool_call"
	EventApprovalRequired EventKind = "approval_required"
	EventToolResult       EventKind = "tool_result"
	EventCompleted        EventKind = "completed"
	EventTrace            EventKind = "trace"
	EventError            EventKind = "error"
)

// ServerEvent is one SSE frame's payload.
type ServerEvent struct {
	Type     EventKind                `json:"type"`
	Text     string                   `json:"text,omitempty"`
	CallID   string                   `json:"callId,omitempty"`
	ToolName string                   `json:"toolName,omitempty"`
	ArgsJSON string                   `json:"argsJson,omitempty"`
	Reason   string                   `json:"reason,omitempty"`
	Result   *conversation.ToolResult `json:"result,omitempty"`
	Message  string                   `json:"message,omitempty"`
}

// Store is the concurrent id -> Runtime map the server consults per request.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*Runtime
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*Runtime)}
}

// Create registers rt under its own session id (rt.Info.ID), replacing any
// runtime already stored under that id.
func (s *Store) Create(rt *Runtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rt.Info.ID] = rt
}

// TryGet retrieves a runtime by id.
func (s *Store) TryGet(id string) (*Runtime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.runs[id]
	return rt, ok
}

// NewID generates a fresh session identifier.
func NewID() string { return uuid.NewString() }

// EnsureWorkspaceDir validates that workspacePath exists and is a directory
// before anything else is constructed.
func EnsureWorkspaceDir(workspacePath string) error {
	info, err := os.Stat(workspacePath)
	if err != nil {
		return fmt.Errorf("workspace %q: %w", workspacePath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %q is not a directory", workspacePath)
	}
	return nil
}
