package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/pocketomega/codex-core/internal/conversation"
)

func TestCostGuardRecordTokensTripsOverBudget(t *testing.T) {
	g := NewCostGuard(100, 0)
	if err := g.RecordTokens(60); err != nil {
		t.Fatalf("expected the first 60 tokens to fit the budget, got %v", err)
	}
	if g.IsExceeded() {
		t.Fatal("guard must not report exceeded while under budget")
	}
	err := g.RecordTokens(60)
	if err == nil {
		t.Fatal("expected the cumulative 120 tokens to exceed the 100-token budget")
	}
	if !g.IsExceeded() {
		t.Fatal("expected IsExceeded to latch after a blown budget")
	}
}

func TestCostGuardZeroBudgetDisablesTokenLimit(t *testing.T) {
	g := NewCostGuard(0, time.Hour)
	if err := g.RecordTokens(1 << 30); err != nil {
		t.Fatalf("expected a zero token budget to disable the limit, got %v", err)
	}
}

func TestCostGuardCheckDuration(t *testing.T) {
	g := NewCostGuard(0, time.Hour)
	if err := g.CheckDuration(); err != nil {
		t.Fatalf("expected a fresh guard to be within its duration budget, got %v", err)
	}

	g = NewCostGuard(0, time.Millisecond)
	g.startTime = time.Now().Add(-time.Second)
	if err := g.CheckDuration(); err == nil {
		t.Fatal("expected an elapsed duration budget to error")
	}
}

func TestContextGuardThresholds(t *testing.T) {
	g := NewContextGuard(100)
	cases := map[int]ContextStatus{
		0:   ContextOK,
		69:  ContextOK,
		70:  ContextWarning,
		84:  ContextWarning,
		85:  ContextCritical,
		200: ContextCritical,
	}
	for tokens, want := range cases {
		if got := g.CheckTokens(tokens); got != want {
			t.Errorf("CheckTokens(%d) = %v, want %v", tokens, got, want)
		}
	}
	if NewContextGuard(0).CheckTokens(1 << 30) != ContextOK {
		t.Error("a zero window must disable the guard")
	}
}

func TestCompactOldestTurnsCutsAtUserBoundary(t *testing.T) {
	var msgs []conversation.Message
	for i := 0; i < 4; i++ {
		msgs = append(msgs,
			conversation.NewUserMessage("prompt"),
			conversation.NewAssistantMessage("", []conversation.ToolCall{{CallID: "c", ToolName: "Echo"}}),
			conversation.NewToolResultMessage("c", "Echo", conversation.ToolResult{OK: true}),
		)
	}

	compacted := compactOldestTurns(msgs)
	if len(compacted) >= len(msgs) {
		t.Fatalf("expected compaction to shrink %d messages, got %d", len(msgs), len(compacted))
	}
	if compacted[0].Role != conversation.RoleUser || !strings.Contains(compacted[0].Text, "compacted") {
		t.Fatalf("expected a leading synthetic summary note, got %+v", compacted[0])
	}
	// The first surviving original message must be a User message, so no
	// Assistant message is ever separated from its Tool results.
	if compacted[1].Role != conversation.RoleUser {
		t.Fatalf("expected the cut to land on a User boundary, got %v", compacted[1].Role)
	}
}
