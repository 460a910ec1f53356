// Package tool defines the tool contract: a descriptor carrying a JSON-Schema
// argument shape and a static policy, plus the executor signature every
// concrete tool (internal/tool/builtin) implements.
package tool

import (
	"context"
	"encoding/json"

	"github.com/pocketomega/codex-core/internal/workspace"
)

// Risk classifies how dangerous a tool's effects are, independent of whether
// a given call happens to require approval.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Policy is a tool's static risk description. The policy engine (internal/policy)
// reads it; tools never consult it themselves.
type Policy struct {
	RequiresApproval bool `json:"requiresApproval"`
	IsReadOnly       bool `json:"isReadOnly"`
	Risk             Risk `json:"risk"`
}

// Diagnostic is one structured explanation attached to a failed (or partially
// failed) Result. ok=false implies at least one diagnostic.
type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Result is the value every tool execution produces. Tools never throw for
// predictable failures — failure is Result{OK: false, Diagnostics: [...]}.
type Result struct {
	OK          bool         `json:"ok"`
	Stdout      string       `json:"stdout,omitempty"`
	Stderr      string       `json:"stderr,omitempty"`
	Data        any          `json:"data,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Failure builds a single-diagnostic failure result.
func Failure(code, message string) Result {
	return Result{OK: false, Diagnostics: []Diagnostic{{Code: code, Message: message}}}
}

// FailureWithDetails is Failure plus a details string on the diagnostic.
func FailureWithDetails(code, message, details string) Result {
	return Result{OK: false, Diagnostics: []Diagnostic{{Code: code, Message: message, Details: details}}}
}

// Success wraps data produced by a tool that ran cleanly.
func Success(data any) Result {
	return Result{OK: true, Data: data}
}

// Approver is the slice of the approval arbitrator a tool execution needs.
// Kept minimal here to avoid a dependency from tool -> approval; the concrete
// arbitrators in internal/approval satisfy it structurally.
type Approver interface {
	RequestApproval(ctx context.Context, toolName string, argsJSON json.RawMessage, callID string) (bool, error)
}

// ExecContext is the environment an executor runs in: the repo root, the
// workspace guard every path-touching tool must resolve through, and the
// approval arbitrator (the orchestrator's tool node calls it before running
// a call that requires approval; no builtin tool calls it itself).
type ExecContext struct {
	RepoRoot string
	Guard    *workspace.Guard
	Approver Approver
}

// SchemaParam describes one JSON-Schema property for the BuildSchema helper.
type SchemaParam struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"-"`
	Enum        []string `json:"enum,omitempty"`
}

// BuildSchema assembles a JSON-Schema object from SchemaParams so concrete
// tools don't hand-write schema text.
func BuildSchema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any, len(params))
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, _ := json.Marshal(schema)
	return data
}

// Descriptor is what the registry and the provider adapters see: everything
// about a tool except its executor.
type Descriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Policy      Policy
}

// Tool is a named, stateless, side-effecting-or-observational operation the
// model can invoke. Executors must never panic for predictable failures;
// unexpected panics are the orchestrator's responsibility to recover from.
type Tool interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, args json.RawMessage, ectx ExecContext) (Result, error)
}
