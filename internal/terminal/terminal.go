// Package terminal implements the interactive line-based surface: a REPL
// over the same orchestrator core the server runtime drives, with
// synchronous terminal approval and /exit, /quit, /help as the only
// commands recognized outside prompts.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pocketomega/codex-core/internal/approval"
	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/orchestrator"
	"github.com/pocketomega/codex-core/internal/policy"
	"github.com/pocketomega/codex-core/internal/provider"
	"github.com/pocketomega/codex-core/internal/session"
	"github.com/pocketomega/codex-core/internal/tool"
	"github.com/pocketomega/codex-core/internal/tool/builtin"
	"github.com/pocketomega/codex-core/internal/util"
	"github.com/pocketomega/codex-core/internal/workspace"
)

// maxDiagnosticRunes bounds how much of a failed tool's diagnostic message
// the REPL prints inline — full detail still lands in the session log.
const maxDiagnosticRunes = 200

// Session drives the REPL loop. Unlike session.Runtime (which mirrors
// events over a channel for SSE), Session prints them directly to Out.
type Session struct {
	Adapter provider.Adapter
	Options orchestrator.Options
	Guard   *workspace.Guard
	Writer  *session.Writer

	AutoApprove bool

	In  io.Reader
	Out io.Writer

	messages []conversation.Message
}

// New constructs a terminal Session under a freshly generated id, opening
// the session log at <repoRoot>/.agent/session_<id>.jsonl.
func New(adapter provider.Adapter, opts orchestrator.Options, providerName string, in io.Reader, out io.Writer, autoApprove bool) (*Session, string, error) {
	return newSession(adapter, opts, providerName, session.NewID(), in, out, autoApprove)
}

// Resume rebuilds a terminal Session under an existing id, appending new
// lines to that id's existing log file rather than starting a fresh one.
// The caller is responsible for loading the prior messages via
// session.Reader and calling Seed.
func Resume(adapter provider.Adapter, opts orchestrator.Options, providerName, id string, in io.Reader, out io.Writer, autoApprove bool) (*Session, error) {
	s, _, err := newSession(adapter, opts, providerName, id, in, out, autoApprove)
	return s, err
}

func newSession(adapter provider.Adapter, opts orchestrator.Options, providerName, id string, in io.Reader, out io.Writer, autoApprove bool) (*Session, string, error) {
	guard, err := workspace.NewGuard(opts.RepoRoot)
	if err != nil {
		return nil, "", fmt.Errorf("terminal: workspace guard: %w", err)
	}
	writer, err := session.OpenWriter(session.LogPath(opts.RepoRoot, id))
	if err != nil {
		return nil, "", err
	}
	writer.WriteSessionStart(session.Info{ID: id, WorkspaceRoot: opts.RepoRoot, ProviderName: providerName, Model: opts.Model, CreatedAt: time.Now().UTC()})
	return &Session{
		Adapter:     adapter,
		Options:     opts,
		Guard:       guard,
		Writer:      writer,
		AutoApprove: autoApprove,
		In:          in,
		Out:         out,
	}, id, nil
}

// Seed preloads a reconstructed message list, for a resumed session.
func (s *Session) Seed(messages []conversation.Message) {
	s.messages = messages
}

// Run reads lines from In until EOF, /exit, or /quit. Returns the process
// exit code: 0 on clean completion.
func (s *Session) Run(ctx context.Context) int {
	defer s.Writer.Close()

	registry := builtin.NewDefaultRegistry()
	policyEngine := policy.NewEngine(s.AutoApprove)
	arbitrator := approval.NewTerminal(s.In, s.Out)
	execCtx := tool.ExecContext{RepoRoot: s.Options.RepoRoot, Guard: s.Guard, Approver: arbitrator}

	scanner := bufio.NewScanner(s.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(s.Out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.Out)
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/exit", "/quit":
			return 0
		case "/help":
			fmt.Fprintln(s.Out, "commands: /exit, /quit, /help — anything else is sent to the model as a prompt")
			continue
		}

		s.Writer.WriteUserPrompt(line)

		onEvent := func(ev provider.Event) {
			s.Writer.WriteEvent(ev)
			switch ev.Kind {
			case provider.KindTextDelta:
				fmt.Fprint(s.Out, ev.Text)
			case provider.KindToolCallStarted:
				fmt.Fprintf(s.Out, "\n[tool] %s\n", ev.ToolName)
			case provider.KindTrace:
				if ev.TraceKind == "error" {
					fmt.Fprintf(s.Out, "\n[provider error] %s\n", ev.Raw)
				}
			}
		}
		onToolResult := func(callID, toolName string, result conversation.ToolResult) {
			s.Writer.WriteToolResultDiagnostic(callID, toolName, result)
			status := "ok"
			if !result.OK {
				status = "failed"
			}
			fmt.Fprintf(s.Out, "[tool] %s -> %s\n", toolName, status)
			if !result.OK && len(result.Diagnostics) > 0 {
				fmt.Fprintf(s.Out, "       %s\n", util.TruncateRunes(result.Diagnostics[0].Message, maxDiagnosticRunes))
			}
		}

		updated, report := orchestrator.RunPrompt(ctx, line, s.messages, s.Options, s.Adapter, registry, policyEngine, execCtx, onEvent, onToolResult)

		for _, m := range updated[len(s.messages):] {
			switch m.Role {
			case conversation.RoleAssistant:
				s.Writer.WriteAssistantMessage(m.Text, m.ToolCalls)
			case conversation.RoleToolResult:
				s.Writer.WriteToolResultMessage(m.CallID, m.ToolName, m.Result)
			}
		}
		s.messages = updated

		fmt.Fprintln(s.Out)
		fmt.Fprintln(s.Out, report)

		if ctx.Err() != nil {
			return 0
		}
	}
}
