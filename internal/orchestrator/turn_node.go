package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/core"
	"github.com/pocketomega/codex-core/internal/metrics"
	"github.com/pocketomega/codex-core/internal/provider"
	"github.com/pocketomega/codex-core/internal/tool"
)

// turnNode implements core.BaseNode[State, TurnPrep, TurnExecResult]. It
// builds one model request from the current conversation, consumes the
// normalized event stream for that turn, and decides whether the loop
// continues, runs pending tool calls, or ends.
type turnNode struct{}

func newTurnNode() *turnNode { return &turnNode{} }

// TurnPrep carries everything Exec needs; Exec never sees *State directly.
type TurnPrep struct {
	Request provider.ModelRequest
	Adapter provider.Adapter
	OnEvent EventSink
}

// TurnExecResult is what a single model turn produced.
type TurnExecResult struct {
	Text        string
	Pending     []conversation.ToolCall
	Completed   bool
	StopReason  string
	ProviderErr string
	Usage       *provider.Usage
}

func (n *turnNode) Prep(state *State) []TurnPrep {
	if state.IterationCount >= state.Options.maxIterations() {
		return nil
	}
	if state.CostGuard != nil {
		if state.CostGuard.IsExceeded() {
			state.Result = "[budget exceeded] token budget exhausted"
			return nil
		}
		if err := state.CostGuard.CheckDuration(); err != nil {
			state.Result = fmt.Sprintf("[budget exceeded] %v", err)
			return nil
		}
	}

	// Compaction only ever narrows what is *sent* to the model this turn;
	// state.Messages keeps full fidelity for the session log and for the
	// "only log what's new this run" diff in session.Runtime.Run and the
	// terminal REPL.
	reqMessages := state.Messages
	if state.ContextGuard != nil && state.ContextGuard.CheckTokens(state.LastTokenUsage) == ContextCritical {
		reqMessages = compactOldestTurns(state.Messages)
	}

	req := provider.ModelRequest{
		Model:        state.Options.Model,
		SystemPrompt: state.Options.SystemPrompt,
		Messages:     reqMessages,
		Tools:        toolDescriptors(state.Registry),
		MaxTokens:    state.Options.maxTokens(),
		Temperature:  state.Options.Temperature,
	}

	metrics.RecordTurn(state.Options.Model)
	return []TurnPrep{{Request: req, Adapter: state.Adapter, OnEvent: state.OnEvent}}
}

func (n *turnNode) Exec(ctx context.Context, prep TurnPrep) (TurnExecResult, error) {
	var text strings.Builder
	var pending []conversation.ToolCall
	completed := false
	stopReason := ""
	providerErr := ""
	var usage *provider.Usage

	for ev := range prep.Adapter.Stream(ctx, prep.Request) {
		if prep.OnEvent != nil {
			prep.OnEvent(ev)
		}
		switch ev.Kind {
		case provider.KindTextDelta:
			text.WriteString(ev.Text)
		case provider.KindToolCallReady:
			pending = append(pending, conversation.ToolCall{
				CallID:   ev.CallID,
				ToolName: ev.ToolName,
				ArgsJSON: json.RawMessage(ev.ArgsJSON),
			})
		case provider.KindTrace:
			if ev.TraceKind == "error" {
				providerErr = ev.Raw
			}
		case provider.KindResponseCompleted:
			stopReason = ev.StopReason
			completed = provider.IsTerminal(ev.StopReason)
			usage = ev.Usage
		}
	}

	return TurnExecResult{
		Text:        text.String(),
		Pending:     pending,
		Completed:   completed,
		StopReason:  stopReason,
		ProviderErr: providerErr,
		Usage:       usage,
	}, nil
}

func (n *turnNode) ExecFallback(err error) TurnExecResult {
	return TurnExecResult{ProviderErr: err.Error()}
}

func (n *turnNode) Post(state *State, _ []TurnPrep, results ...TurnExecResult) core.Action {
	if len(results) == 0 {
		if state.Result == "" {
			state.Result = "[max iterations reached]"
		}
		return core.ActionEnd
	}

	result := results[0]
	state.IterationCount++

	var budgetErr error
	if result.Usage != nil {
		state.LastTokenUsage = result.Usage.TotalTokens
		if state.CostGuard != nil {
			budgetErr = state.CostGuard.RecordTokens(result.Usage.TotalTokens)
		}
	}

	if result.Text != "" || len(result.Pending) > 0 {
		state.Messages = append(state.Messages, conversation.NewAssistantMessage(result.Text, result.Pending))
	}

	// A blown token budget ends the run before another turn starts. The
	// assistant message above is still appended — the turn did happen — but
	// its pending calls are not executed.
	if budgetErr != nil && len(result.Pending) > 0 {
		state.Result = fmt.Sprintf("[budget exceeded] %v", budgetErr)
		return core.ActionEnd
	}

	switch {
	case len(result.Pending) == 0 && result.Completed:
		state.Result = result.Text
		return core.ActionEnd

	case len(result.Pending) == 0 && result.Text == "" && !result.Completed:
		msg := "[no response]"
		if result.StopReason != "" {
			msg = fmt.Sprintf("%s (stop_reason=%s)", msg, result.StopReason)
		}
		if result.ProviderErr != "" {
			msg = fmt.Sprintf("%s: %s", msg, result.ProviderErr)
		}
		state.Result = msg
		state.ProviderError = result.ProviderErr
		return core.ActionEnd

	case len(result.Pending) > 0:
		state.pendingCalls = result.Pending
		return core.ActionTool

	default:
		// Pending empty, text non-empty, not completed: the model isn't
		// done but left nothing for the orchestrator to act on.
		state.Result = result.Text
		return core.ActionEnd
	}
}

func toolDescriptors(registry *tool.Registry) []provider.ToolDescriptor {
	if registry == nil {
		return nil
	}
	descs := registry.Descriptors()
	out := make([]provider.ToolDescriptor, 0, len(descs))
	for _, d := range descs {
		out = append(out, provider.ToolDescriptor{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: string(d.InputSchema),
		})
	}
	return out
}
