package core_test

import (
	"context"
	"testing"

	"github.com/pocketomega/codex-core/internal/core"
)

type traceState struct {
	phases []string
}

// recordingNode appends its name to the shared state at each phase and
// returns a fixed action from Post.
type recordingNode struct {
	name   string
	action core.Action
}

func (n *recordingNode) Prep(state *traceState) []string {
	state.phases = append(state.phases, n.name+":prep")
	return []string{"item"}
}

func (n *recordingNode) Exec(_ context.Context, _ string) (string, error) {
	return "result", nil
}

func (n *recordingNode) Post(state *traceState, _ []string, _ ...string) core.Action {
	state.phases = append(state.phases, n.name+":post")
	return n.action
}

func (n *recordingNode) ExecFallback(_ error) string { return "fallback" }

func wrap(name string, action core.Action) *core.Node[traceState, string, string] {
	return core.NewNode[traceState, string, string](&recordingNode{name: name, action: action})
}

func TestFlowRunsSingleNode(t *testing.T) {
	state := &traceState{}
	flow := core.NewFlow[traceState](wrap("A", core.ActionEnd))

	if action := flow.Run(context.Background(), state); action != core.ActionEnd {
		t.Errorf("expected ActionEnd, got %q", action)
	}
	if len(state.phases) != 2 {
		t.Errorf("expected prep+post, got %v", state.phases)
	}
}

func TestFlowFollowsSuccessorEdge(t *testing.T) {
	state := &traceState{}
	a := wrap("A", core.ActionContinue)
	b := wrap("B", core.ActionEnd)
	a.AddSuccessor(b, core.ActionContinue)

	flow := core.NewFlow[traceState](a)
	if action := flow.Run(context.Background(), state); action != core.ActionEnd {
		t.Errorf("expected ActionEnd, got %q", action)
	}
	want := []string{"A:prep", "A:post", "B:prep", "B:post"}
	if len(state.phases) != len(want) {
		t.Errorf("expected %v, got %v", want, state.phases)
	}
}

func TestFlowNilStartNodeFails(t *testing.T) {
	flow := core.NewFlow[traceState](nil)
	if action := flow.Run(context.Background(), &traceState{}); action != core.ActionFailure {
		t.Errorf("expected ActionFailure for nil start node, got %q", action)
	}
}

func TestFlowStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flow := core.NewFlow[traceState](wrap("A", core.ActionContinue))
	if action := flow.Run(ctx, &traceState{}); action != core.ActionFailure {
		t.Errorf("expected ActionFailure on cancelled context, got %q", action)
	}
}

func TestFlowStopsWhenNoSuccessorMatches(t *testing.T) {
	flow := core.NewFlow[traceState](wrap("A", core.ActionContinue))
	if action := flow.Run(context.Background(), &traceState{}); action != core.ActionContinue {
		t.Errorf("expected the start node's own action when nothing matches, got %q", action)
	}
}

func TestFlowIterationCapBreaksCycles(t *testing.T) {
	a := wrap("A", core.ActionContinue)
	b := wrap("B", core.ActionContinue)
	a.AddSuccessor(b, core.ActionContinue)
	b.AddSuccessor(a, core.ActionContinue)

	flow := core.NewFlow[traceState](a)
	if action := flow.Run(context.Background(), &traceState{}); action != core.ActionFailure {
		t.Errorf("expected ActionFailure when a cycle never produces a terminal action, got %q", action)
	}
}
