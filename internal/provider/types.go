// Package provider defines the normalized streaming event model that every
// vendor adapter must translate its wire protocol into, plus the outbound
// ModelRequest shape the orchestrator builds each turn.
package provider

import (
	"context"

	"github.com/pocketomega/codex-core/internal/conversation"
)

// EventKind is the closed set of normalized event variants an adapter may
// emit. The zero value is never used; every constructor below sets it.
type EventKind string

const (
	KindTextDelta         EventKind = "text_delta"
	KindToolCallStarted   EventKind = "tool_call_started"
	KindToolCallArgsDelta EventKind = "tool_call_args_delta"
	KindToolCallReady     EventKind = "tool_call_ready"
	KindResponseCompleted EventKind = "response_completed"
	KindTrace             EventKind = "trace"
)

// Usage reports token accounting, when the vendor supplies it.
type Usage struct {
	PromptTokens     int `json:"promptTokens,omitempty"`
	CompletionTokens int `json:"completionTokens,omitempty"`
	TotalTokens      int `json:"totalTokens,omitempty"`
}

// Event is a tagged union over the six normalized variants. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind EventKind

	// text_delta
	Text string

	// tool_call_started / tool_call_args_delta / tool_call_ready
	CallID   string
	ToolName string
	Fragment string
	ArgsJSON string

	// response_completed
	StopReason string
	Usage      *Usage

	// trace
	TraceKind string
	Raw       string
}

func TextDelta(text string) Event {
	return Event{Kind: KindTextDelta, Text: text}
}

func ToolCallStarted(callID, toolName string) Event {
	return Event{Kind: KindToolCallStarted, CallID: callID, ToolName: toolName}
}

func ToolCallArgsDelta(callID, fragment string) Event {
	return Event{Kind: KindToolCallArgsDelta, CallID: callID, Fragment: fragment}
}

func ToolCallReady(callID, toolName, argsJSON string) Event {
	return Event{Kind: KindToolCallReady, CallID: callID, ToolName: toolName, ArgsJSON: argsJSON}
}

func ResponseCompleted(stopReason string, usage *Usage) Event {
	return Event{Kind: KindResponseCompleted, StopReason: stopReason, Usage: usage}
}

func Trace(kind, raw string) Event {
	return Event{Kind: KindTrace, TraceKind: kind, Raw: raw}
}

// IsTerminal reports whether stopReason means the assistant considers its
// turn finished with no further work, per the stop-reason normalization
// every adapter is required to perform.
func IsTerminal(stopReason string) bool {
	return stopReason == "end_turn" || stopReason == "stop"
}

// ToolDescriptor is the provider-facing view of a registered tool: just
// enough to build the vendor's function/tool schema, independent of the
// tool package's execution contract.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema string // JSON-Schema text
}

// ModelRequest is (model, optional system prompt, ordered messages, tool
// descriptors, optional max_tokens, optional temperature).
type ModelRequest struct {
	Model        string
	SystemPrompt string
	Messages     []conversation.Message
	Tools        []ToolDescriptor
	MaxTokens    int
	Temperature  *float32
}

// Adapter is the provider-agnostic streaming contract: stream(request,
// cancel) -> lazy sequence of normalized events; finite; not restartable.
// The channel is owned by the adapter, closed exactly once when the stream
// ends, and never panics across it: every failure mode becomes a trace
// event followed by a terminal response_completed.
type Adapter interface {
	Stream(ctx context.Context, req ModelRequest) <-chan Event
}
