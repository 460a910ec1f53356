package policy

import (
	"encoding/json"
	"testing"

	"github.com/pocketomega/codex-core/internal/tool"
	"github.com/pocketomega/codex-core/internal/tool/builtin"
)

func TestAutoApproveOverridesEverything(t *testing.T) {
	e := NewEngine(true)
	desc := tool.Descriptor{Name: "RunCommand", Policy: tool.Policy{RequiresApproval: true}}
	args, _ := json.Marshal(builtin.RunCommandArgs{Exe: "rm"})
	if got := e.Evaluate(desc, args); got != Allowed {
		t.Fatalf("expected Allowed under auto_approve, got %v", got)
	}
}

func TestStaticPolicyRequiresApproval(t *testing.T) {
	e := NewEngine(false)
	desc := tool.Descriptor{Name: "ApplyPatch", Policy: tool.Policy{RequiresApproval: true}}
	if got := e.Evaluate(desc, json.RawMessage(`{}`)); got != RequiresApproval {
		t.Fatalf("expected RequiresApproval, got %v", got)
	}
}

func TestRunCommandDenylist(t *testing.T) {
	e := NewEngine(false)
	desc := builtin.NewRunCommandTool().Descriptor()
	for _, exe := range []string{"rm", "curl", "bash", "/usr/bin/ssh"} {
		args, _ := json.Marshal(builtin.RunCommandArgs{Exe: exe})
		if got := e.Evaluate(desc, args); got != RequiresApproval {
			t.Fatalf("exe=%q: expected RequiresApproval, got %v", exe, got)
		}
	}
}

func TestRunCommandUnparseableArgsRequiresApproval(t *testing.T) {
	e := NewEngine(false)
	desc := builtin.NewRunCommandTool().Descriptor()
	if got := e.Evaluate(desc, json.RawMessage(`not json`)); got != RequiresApproval {
		t.Fatalf("expected RequiresApproval on parse failure, got %v", got)
	}
}
