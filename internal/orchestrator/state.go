package orchestrator

import (
	"time"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/policy"
	"github.com/pocketomega/codex-core/internal/provider"
	"github.com/pocketomega/codex-core/internal/tool"
)

// Options is (repo_root, model, system_prompt, max_iterations
// default 20, max_tokens default 4096, temperature?).
type Options struct {
	RepoRoot      string
	Model         string
	SystemPrompt  string
	MaxIterations int
	MaxTokens     int
	Temperature   *float32

	// ContextWindowTokens enables the context guard; 0 disables it.
	ContextWindowTokens int
	// MaxCostTokens/MaxDuration enable the cost guard; 0 disables each.
	MaxCostTokens int64
	MaxDuration   time.Duration
}

func (o Options) maxIterations() int {
	if o.MaxIterations <= 0 {
		return 20
	}
	return o.MaxIterations
}

func (o Options) maxTokens() int {
	if o.MaxTokens <= 0 {
		return 4096
	}
	return o.MaxTokens
}

// EventSink receives normalized provider events as the turn streams, for a
// terminal printer or a server's SSE fan-out to subscribe to.
type EventSink func(provider.Event)

// ToolResultSink receives one record per executed tool call, independent of
// the provider event stream, for session-log / server mirroring.
type ToolResultSink func(callID, toolName string, result conversation.ToolResult)

// State is the orchestrator's shared state, threaded through the turn/tool
// node pair by core.Flow. Not goroutine-safe: the flow runs nodes on a
// single goroutine.
type State struct {
	Messages []conversation.Message
	Options  Options

	Adapter      provider.Adapter
	Registry     *tool.Registry
	PolicyEngine *policy.Engine
	ExecCtx      tool.ExecContext

	OnEvent      EventSink
	OnToolResult ToolResultSink

	IterationCount int
	CallHistory    []toolCallRecord

	ContextGuard *ContextGuard // nil = disabled
	CostGuard    *CostGuard    // nil = disabled
	LoopDetector *LoopDetector // nil = disabled

	// LastTokenUsage is the prior turn's reported total token count, the
	// basis ContextGuard checks against before building the next request.
	LastTokenUsage int

	// Transient: set by turnNode.Post, consumed by toolExecNode.
	pendingCalls []conversation.ToolCall

	// Final report, set once the loop ends.
	Result        string
	ProviderError string
}

// AppendUser appends a User message. Called once at the start of RunPrompt.
func (s *State) AppendUser(text string) {
	s.Messages = append(s.Messages, conversation.NewUserMessage(text))
}

func (s *State) emit(ev provider.Event) {
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}
}
