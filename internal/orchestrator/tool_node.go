package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/core"
	"github.com/pocketomega/codex-core/internal/metrics"
	"github.com/pocketomega/codex-core/internal/policy"
	"github.com/pocketomega/codex-core/internal/tool"
)

// toolExecNode implements core.BaseNode[State, ToolPrep, ToolExecOut]. It
// runs every call turnNode left pending, in emission order, under the
// policy engine and approval arbitrator, then routes back to the turn node.
type toolExecNode struct{}

func newToolExecNode() *toolExecNode { return &toolExecNode{} }

// ToolPrep is one pending call plus everything Exec needs to run it.
type ToolPrep struct {
	Call         conversation.ToolCall
	Registry     *tool.Registry
	PolicyEngine *policy.Engine
	ExecCtx      tool.ExecContext
	LoopDetector *LoopDetector
	CallHistory  []toolCallRecord
}

// ToolExecOut is the outcome of running a single call.
type ToolExecOut struct {
	CallID   string
	ToolName string
	Result   conversation.ToolResult
	Failed   bool
}

// Prep fans out one work item per pending call; Run executes them in
// emission order on a single goroutine, never in parallel.
func (n *toolExecNode) Prep(state *State) []ToolPrep {
	preps := make([]ToolPrep, 0, len(state.pendingCalls))
	for _, call := range state.pendingCalls {
		preps = append(preps, ToolPrep{
			Call:         call,
			Registry:     state.Registry,
			PolicyEngine: state.PolicyEngine,
			ExecCtx:      state.ExecCtx,
			LoopDetector: state.LoopDetector,
			CallHistory:  state.CallHistory,
		})
	}
	return preps
}

func (n *toolExecNode) Exec(ctx context.Context, prep ToolPrep) (ToolExecOut, error) {
	call := prep.Call

	t, ok := prep.Registry.Get(call.ToolName)
	if !ok {
		return failureOut(call, "UnknownTool", fmt.Sprintf("Unknown tool: %s", call.ToolName)), nil
	}
	desc := t.Descriptor()

	decision := policy.Allowed
	if prep.PolicyEngine != nil {
		decision = prep.PolicyEngine.Evaluate(desc, call.ArgsJSON)
	}
	if decision == policy.Allowed && prep.LoopDetector != nil {
		tentative := append(append([]toolCallRecord{}, prep.CallHistory...), toolCallRecord{
			toolName: call.ToolName,
			argsJSON: string(call.ArgsJSON),
		})
		if r := prep.LoopDetector.Check(tentative); r.Detected {
			decision = policy.RequiresApproval
		}
	}
	switch decision {
	case policy.Denied:
		return failureOut(call, "PolicyDenied", "Tool execution denied by policy"), nil
	case policy.RequiresApproval:
		if prep.ExecCtx.Approver == nil {
			return failureOut(call, "UserDenied", "User denied approval"), nil
		}
		approved, err := prep.ExecCtx.Approver.RequestApproval(ctx, desc.Name, call.ArgsJSON, call.CallID)
		if err != nil {
			return failureOut(call, "ApprovalCancelled", fmt.Sprintf("Tool execution failed: %v", err)), nil
		}
		if !approved {
			return failureOut(call, "UserDenied", "User denied approval"), nil
		}
	}

	args := call.ArgsJSON
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var probe map[string]any
	if err := json.Unmarshal(args, &probe); err != nil {
		return failureOut(call, "ArgsParseError", fmt.Sprintf("Tool execution failed: %v", err)), nil
	}

	result, execErr := runTool(ctx, t, args, prep.ExecCtx)
	if execErr != nil {
		return failureOut(call, "ExecutionError", fmt.Sprintf("Tool execution failed: %v", execErr)), nil
	}

	return ToolExecOut{
		CallID:   call.CallID,
		ToolName: call.ToolName,
		Result:   toConversationResult(result),
	}, nil
}

// runTool guards against a panicking executor the way the contract demands
// ("tools must never throw for predictable failures") without letting an
// unexpected panic take the whole orchestrator down with it.
func runTool(ctx context.Context, t tool.Tool, args json.RawMessage, ectx tool.ExecContext) (res tool.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Execute(ctx, args, ectx)
}

func (n *toolExecNode) ExecFallback(err error) ToolExecOut {
	return ToolExecOut{
		Result: conversation.ToolResult{
			OK:          false,
			Diagnostics: []conversation.ToolDiagnostic{{Code: "ExecutionError", Message: fmt.Sprintf("Tool execution failed: %v", err)}},
		},
		Failed: true,
	}
}

// Post appends one Tool result message per call, in order, then routes
// back to the turn node for the next model request.
func (n *toolExecNode) Post(state *State, preps []ToolPrep, results ...ToolExecOut) core.Action {
	for i, out := range results {
		callID, toolName := out.CallID, out.ToolName
		if callID == "" && i < len(preps) {
			callID = preps[i].Call.CallID
			toolName = preps[i].Call.ToolName
		}
		metrics.RecordTool(toolName, out.Result.OK)
		state.Messages = append(state.Messages, conversation.NewToolResultMessage(callID, toolName, out.Result))
		state.CallHistory = append(state.CallHistory, toolCallRecord{
			toolName: toolName,
			argsJSON: callArgsJSON(preps, i),
			failed:   !out.Result.OK,
		})
		if state.OnToolResult != nil {
			state.OnToolResult(callID, toolName, out.Result)
		}
	}
	state.pendingCalls = nil
	return core.ActionContinue
}

func callArgsJSON(preps []ToolPrep, i int) string {
	if i >= len(preps) {
		return ""
	}
	return string(preps[i].Call.ArgsJSON)
}

func failureOut(call conversation.ToolCall, code, message string) ToolExecOut {
	return ToolExecOut{
		CallID:   call.CallID,
		ToolName: call.ToolName,
		Result: conversation.ToolResult{
			OK:          false,
			Diagnostics: []conversation.ToolDiagnostic{{Code: code, Message: message}},
		},
	}
}

func toConversationResult(r tool.Result) conversation.ToolResult {
	diags := make([]conversation.ToolDiagnostic, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		diags[i] = conversation.ToolDiagnostic{Code: d.Code, Message: d.Message, Details: d.Details}
	}
	return conversation.ToolResult{
		OK:          r.OK,
		Stdout:      r.Stdout,
		Stderr:      r.Stderr,
		Data:        r.Data,
		Diagnostics: diags,
	}
}
