package enqueue

import "github.com/suiterunner/harness/internal/graph"

// CommandEnqueuer is the Command Enqueuer (spec.md §4.4): it subscribes
// to a Graph's Added/Changed events and promotes nodes out of
// initialized/waiting once their dependencies have settled enough to
// decide the node's fate.
//
// Promotion rule, evaluated whenever a node or one of its dependencies
// changes:
//   - all deps successful (vacuously true for zero deps)    -> enqueuing
//   - all deps terminal AND this node is a timing dependency -> enqueuing
//   - any dep failed/unableToRun AND not a timing dependency  -> unableToRun
//   - otherwise                                               -> waiting
type CommandEnqueuer struct {
	graph *graph.Graph
}

// NewCommandEnqueuer registers a CommandEnqueuer against g. It begins
// observing immediately; callers should construct it before adding any
// nodes that must be promoted automatically.
func NewCommandEnqueuer(g *graph.Graph) *CommandEnqueuer {
	ce := &CommandEnqueuer{graph: g}
	g.OnAdded(ce.handleAdded)
	g.OnChanged(ce.handleChanged)
	return ce
}

func (ce *CommandEnqueuer) handleAdded(n *graph.Node) {
	ce.evaluate(n)
}

func (ce *CommandEnqueuer) handleChanged(e graph.ChangedEvent) {
	if !e.To.Terminal() {
		return
	}
	for _, depID := range e.Node.NeededFor {
		ce.evaluate(ce.graph.Node(depID))
	}
}

func (ce *CommandEnqueuer) evaluate(n *graph.Node) {
	if n.State != graph.Initialized && n.State != graph.Waiting {
		return
	}

	allSuccessful := true
	allTerminal := true
	anyFailedOrUnable := false
	for _, depID := range n.Deps {
		dep := ce.graph.Node(depID)
		if dep.State != graph.Successful {
			allSuccessful = false
		}
		if !dep.State.Terminal() {
			allTerminal = false
		}
		if dep.State == graph.Failed || dep.State == graph.UnableToRun {
			anyFailedOrUnable = true
		}
	}

	switch {
	case allSuccessful:
		_ = ce.graph.ChangeState(n.ID, graph.Enqueuing)
	case n.TimingDependency && allTerminal:
		_ = ce.graph.ChangeState(n.ID, graph.Enqueuing)
	case anyFailedOrUnable && !n.TimingDependency:
		_ = ce.graph.ChangeState(n.ID, graph.UnableToRun)
	case n.State == graph.Initialized:
		_ = ce.graph.ChangeState(n.ID, graph.Waiting)
	}
}
