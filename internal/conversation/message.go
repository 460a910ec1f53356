// Package conversation holds the shared message/tool-call domain types that
// the provider adapters, the orchestrator, and the session log all need
// without importing one another.
package conversation

import "encoding/json"

// Role identifies which of the three message variants a Message carries.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// ToolCall is (call_id, tool_name, args_json). args_json is a complete JSON
// object once the value exists; partial fragments live only inside adapters.
type ToolCall struct {
	CallID   string          `json:"callId"`
	ToolName string          `json:"toolName"`
	ArgsJSON json.RawMessage `json:"argsJson"`
}

// ToolResult mirrors tool.Result without importing the tool package, so that
// conversation has no dependency on the tool contract.
type ToolResult struct {
	OK          bool             `json:"ok"`
	Stdout      string           `json:"stdout,omitempty"`
	Stderr      string           `json:"stderr,omitempty"`
	Data        any              `json:"data,omitempty"`
	Diagnostics []ToolDiagnostic `json:"diagnostics,omitempty"`
}

type ToolDiagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Message is one of three variants, discriminated by Role:
//   - User: Text set, everything else zero.
//   - Assistant: Text optional, ToolCalls optional ordered list.
//   - ToolResult: CallID + ToolName + Result reference a prior ToolCall.
type Message struct {
	Role Role `json:"role"`

	// User / Assistant
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolResult
	CallID   string     `json:"callId,omitempty"`
	ToolName string     `json:"toolName,omitempty"`
	Result   ToolResult `json:"result,omitempty"`
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

func NewAssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

func NewToolResultMessage(callID, toolName string, result ToolResult) Message {
	return Message{Role: RoleToolResult, CallID: callID, ToolName: toolName, Result: result}
}
