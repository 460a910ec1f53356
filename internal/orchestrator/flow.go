// Package orchestrator implements the turn/tool loop: it drives the
// model's normalized event stream, executes the tool calls a turn produces
// under policy and approval, mutates the conversation, and repeats until
// the model signals completion, the iteration budget is exhausted, or the
// caller cancels.
package orchestrator

import (
	"context"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/core"
	"github.com/pocketomega/codex-core/internal/policy"
	"github.com/pocketomega/codex-core/internal/provider"
	"github.com/pocketomega/codex-core/internal/tool"
)

// buildFlow wires the two-node graph: turnNode -> (ActionTool) -> toolExecNode
// -> (ActionContinue) -> turnNode. turnNode's ActionEnd has no successor, so
// the flow stops there.
func buildFlow() *core.Flow[State] {
	turn := core.NewNode[State, TurnPrep, TurnExecResult](newTurnNode())
	exec := core.NewNode[State, ToolPrep, ToolExecOut](newToolExecNode())

	turn.AddSuccessor(exec, core.ActionTool)
	exec.AddSuccessor(turn, core.ActionContinue)

	return core.NewFlow[State](turn)
}

// RunPrompt is the entrypoint the terminal session and the server runner
// both call: append the user prompt, run the loop, return the updated
// conversation and the final report line.
func RunPrompt(ctx context.Context, userPrompt string, messages []conversation.Message, opts Options, adapter provider.Adapter, registry *tool.Registry, policyEngine *policy.Engine, execCtx tool.ExecContext, onEvent EventSink, onToolResult ToolResultSink) ([]conversation.Message, string) {
	state := &State{
		Messages:     messages,
		Options:      opts,
		Adapter:      adapter,
		Registry:     registry,
		PolicyEngine: policyEngine,
		ExecCtx:      execCtx,
		OnEvent:      onEvent,
		OnToolResult: onToolResult,
	}
	if opts.ContextWindowTokens > 0 {
		state.ContextGuard = NewContextGuard(opts.ContextWindowTokens)
	}
	if opts.MaxCostTokens > 0 || opts.MaxDuration > 0 {
		state.CostGuard = NewCostGuard(opts.MaxCostTokens, opts.MaxDuration)
	}
	state.LoopDetector = &LoopDetector{}

	state.AppendUser(userPrompt)

	flow := buildFlow()
	action := flow.Run(ctx, state)

	if ctx.Err() != nil {
		state.Result = "[cancelled]"
	} else if action == core.ActionFailure && state.Result == "" {
		state.Result = "[error]"
	}

	return state.Messages, state.Result
}
