package core

import "context"

// BaseNode is the three-phase unit of work the engine runs: Prep reads
// shared state and fans out work items, Exec processes one item at a time,
// Post folds the results back into state and picks the next action.
//
// Type parameters:
//   - State: the shared state threaded through the whole flow
//   - PrepResult: one work item, produced by Prep and consumed by Exec
//   - ExecResults: one outcome, produced by Exec and consumed by Post
type BaseNode[State any, PrepResult any, ExecResults any] interface {
	// Prep reads from shared state and generates work items for Exec.
	// Returning an empty slice skips Exec; Post still runs.
	Prep(state *State) []PrepResult

	// Exec performs the core logic on a single work item. It never sees
	// *State, so a node's side effects are confined to Post.
	Exec(ctx context.Context, prepResult PrepResult) (ExecResults, error)

	// Post handles the results from every Exec call and routes the flow.
	Post(state *State, prepRes []PrepResult, execResults ...ExecResults) Action

	// ExecFallback supplies a stand-in result when Exec fails, so Post
	// always has one result per work item.
	ExecFallback(err error) ExecResults
}

// Workflow is anything a successor edge can point at. Node is the only
// implementation; the interface exists because nodes with different
// PrepResult/ExecResults parameters must still route to one another.
type Workflow[State any] interface {
	// Run executes the workflow and returns an action for routing.
	Run(ctx context.Context, state *State) Action

	// GetSuccessor returns the successor workflow for a given action, or
	// nil when the action has no edge.
	GetSuccessor(action Action) Workflow[State]

	// AddSuccessor connects a successor workflow for a specific action and
	// returns it for chaining.
	AddSuccessor(successor Workflow[State], action Action) Workflow[State]
}
