package core

import "context"

// Node wraps a BaseNode with successor routing so a Flow can schedule it.
type Node[State any, PrepResult any, ExecResults any] struct {
	node       BaseNode[State, PrepResult, ExecResults]
	successors map[Action]Workflow[State]
}

// NewNode wraps basenode for use in a Flow.
func NewNode[State any, PrepResult any, ExecResults any](
	basenode BaseNode[State, PrepResult, ExecResults],
) *Node[State, PrepResult, ExecResults] {
	return &Node[State, PrepResult, ExecResults]{
		node:       basenode,
		successors: make(map[Action]Workflow[State]),
	}
}

// Run implements Workflow: Prep fans out work items, each runs through Exec
// exactly once (ExecFallback substitutes a result when Exec errors or the
// context is already cancelled), and Post folds the outcomes into state.
// An empty Prep skips straight to Post.
func (n *Node[State, PrepResult, ExecResults]) Run(ctx context.Context, state *State) Action {
	prepRes := n.node.Prep(state)
	if len(prepRes) == 0 {
		return n.node.Post(state, prepRes)
	}

	execResults := make([]ExecResults, len(prepRes))
	for i, item := range prepRes {
		if err := ctx.Err(); err != nil {
			execResults[i] = n.node.ExecFallback(err)
			continue
		}
		result, err := n.node.Exec(ctx, item)
		if err != nil {
			execResults[i] = n.node.ExecFallback(err)
		} else {
			execResults[i] = result
		}
	}

	return n.node.Post(state, prepRes, execResults...)
}

// AddSuccessor registers workflow as the successor for action and returns
// it for chaining.
func (n *Node[State, PrepResult, ExecResults]) AddSuccessor(
	workflow Workflow[State], action Action,
) Workflow[State] {
	if workflow == nil {
		return workflow
	}
	n.successors[action] = workflow
	return workflow
}

// GetSuccessor returns the successor for the given action, or nil.
func (n *Node[State, PrepResult, ExecResults]) GetSuccessor(action Action) Workflow[State] {
	return n.successors[action]
}
