// Package policy implements the static + argument-inspecting decision of
// whether a tool call may proceed without human confirmation.
package policy

import (
	"encoding/json"
	"strings"

	"github.com/pocketomega/codex-core/internal/tool"
	"github.com/pocketomega/codex-core/internal/tool/builtin"
)

// Decision is the outcome of Evaluate.
type Decision int

const (
	Allowed Decision = iota
	RequiresApproval
	Denied
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case RequiresApproval:
		return "requires_approval"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// denylistFragments are substrings of a RunCommand's exe that escalate to
// approval even when the tool's static policy wouldn't otherwise require it.
// Coarse by design: refined gating belongs in an alternative engine
// implementing the same contract.
var denylistFragments = []string{"rm", "del", "rmdir", "format", "curl", "wget", "ssh", "powershell", "cmd", "bash", "sh"}

// Engine evaluates a tool call against the fixed rule order from the
// policy design: auto_approve override, static policy, RunCommand argument
// inspection, default allow.
type Engine struct {
	AutoApprove bool
}

// NewEngine constructs an Engine. autoApprove disables all gating.
func NewEngine(autoApprove bool) *Engine {
	return &Engine{AutoApprove: autoApprove}
}

// Evaluate decides whether the given tool call may proceed.
func (e *Engine) Evaluate(desc tool.Descriptor, argsJSON json.RawMessage) Decision {
	if e.AutoApprove {
		return Allowed
	}
	if desc.Policy.RequiresApproval {
		return RequiresApproval
	}
	if strings.EqualFold(desc.Name, "RunCommand") {
		var a builtin.RunCommandArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return RequiresApproval
		}
		exe := strings.ToLower(a.Exe)
		for _, frag := range denylistFragments {
			if strings.Contains(exe, frag) {
				return RequiresApproval
			}
		}
	}
	return Allowed
}
