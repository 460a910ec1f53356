package core

import (
	"context"
	"log"
)

// maxFlowIterations caps node transitions per Run call, independently of
// any application-level bound such as the orchestrator's MaxIterations. It
// only exists to stop a miswired successor graph from spinning forever.
const maxFlowIterations = 200

// Flow walks a graph of Workflows connected by action-routed successor
// edges, starting at startNode and stopping at the first action with no
// matching edge.
type Flow[State any] struct {
	startNode Workflow[State]
}

// NewFlow creates a Flow that begins execution at startNode.
func NewFlow[State any](startNode Workflow[State]) *Flow[State] {
	return &Flow[State]{startNode: startNode}
}

// Run returns the last action a node produced, or ActionFailure on a nil
// start node, a cancelled context, or the transition cap.
func (f *Flow[State]) Run(ctx context.Context, state *State) Action {
	current := f.startNode
	if current == nil {
		log.Println("[Flow] Warning: started with no start node")
		return ActionFailure
	}

	lastAction := ActionEnd
	for i := 0; current != nil; i++ {
		if i >= maxFlowIterations {
			log.Printf("[Flow] Warning: maxFlowIterations (%d) reached, aborting to prevent infinite loop", maxFlowIterations)
			return ActionFailure
		}

		if ctx.Err() != nil {
			log.Printf("[Flow] Context cancelled: %v", ctx.Err())
			return ActionFailure
		}

		action := current.Run(ctx, state)
		lastAction = action
		current = current.GetSuccessor(action)
	}
	return lastAction
}
