package graph

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/suiterunner/harness/internal/model"
)

// ErrSealed is returned by Add once the graph has been sealed.
var ErrSealed = errors.New("graph: sealed, no further nodes may be added")

// ErrNonMonotoneTransition is returned by ChangeState when the
// requested transition does not move a node strictly toward a
// terminal state. Per spec.md §4.2 this indicates a scheduler bug; the
// caller decides how to treat it (the Command Queue panics via
// model.Invariant).
type ErrNonMonotoneTransition struct {
	ID       NodeID
	From, To State
}

func (e *ErrNonMonotoneTransition) Error() string {
	return fmt.Sprintf("graph: non-monotone transition for node %d: %s -> %s", e.ID, e.From, e.To)
}

// ChangedEvent describes one node's state transition.
type ChangedEvent struct {
	Node *Node
	From State
	To   State
}

// Graph is a typed DAG of commands with per-node state and listener
// callbacks. Graph exclusively owns its nodes (spec.md §3 "Ownership").
//
// Per spec.md §9's design note, listeners are plain callbacks invoked
// synchronously in registration order — there is no embedded
// back-reference from Node to its observers, and no goroutine fan-out:
// listeners run on whichever goroutine called Add, ChangeState or Seal.
type Graph struct {
	mu     sync.Mutex
	nodes  []*Node
	byKey  map[string]NodeID
	sealed bool

	onAdded   []func(*Node)
	onChanged []func(ChangedEvent)
	onSealed  []func()
}

// New creates an empty, unsealed Graph.
func New() *Graph {
	return &Graph{
		byKey: make(map[string]NodeID),
	}
}

// OnAdded registers a listener invoked synchronously whenever a new
// node is added.
func (g *Graph) OnAdded(fn func(*Node)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onAdded = append(g.onAdded, fn)
}

// OnChanged registers a listener invoked synchronously whenever a
// node's state changes, in the order transitions occur.
func (g *Graph) OnChanged(fn func(ChangedEvent)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChanged = append(g.onChanged, fn)
}

// OnSealed registers a listener invoked exactly once when the graph is
// sealed.
func (g *Graph) OnSealed(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onSealed = append(g.onSealed, fn)
}

// Add inserts a new node for cmd depending on deps, returning its
// NodeID. Callers must deduplicate by Command.Key() before calling Add
// — adding the same command key twice is a caller bug and panics via
// model.Invariant (spec.md §4.2: "Duplicate commands must not produce
// two nodes: callers deduplicate by command identity before calling
// add").
func (g *Graph) Add(cmd model.Command, deps []NodeID, timingDependency bool) (NodeID, error) {
	g.mu.Lock()

	if g.sealed {
		g.mu.Unlock()
		return 0, ErrSealed
	}

	key := cmd.Key()
	if _, exists := g.byKey[key]; exists {
		g.mu.Unlock()
		model.Invariant(false, "duplicate command added to graph: %s", cmd.DisplayName)
	}

	for _, d := range deps {
		model.Precondition(int(d) >= 0 && int(d) < len(g.nodes), "dependency id %d out of range", d)
	}

	id := NodeID(len(g.nodes))
	node := &Node{
		ID:               id,
		Command:          cmd,
		State:            Initialized,
		Deps:             append([]NodeID(nil), deps...),
		TimingDependency: timingDependency,
	}
	g.nodes = append(g.nodes, node)
	g.byKey[key] = id

	for _, d := range deps {
		dep := g.nodes[d]
		dep.NeededFor = append(dep.NeededFor, id)
	}

	listeners := make([]func(*Node), len(g.onAdded))
	copy(listeners, g.onAdded)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(node)
	}
	return id, nil
}

// ChangeState transitions node id to newState. Non-monotone
// transitions (including any transition away from a terminal state)
// return ErrNonMonotoneTransition instead of mutating the node.
func (g *Graph) ChangeState(id NodeID, newState State) error {
	g.mu.Lock()

	model.Precondition(int(id) >= 0 && int(id) < len(g.nodes), "node id %d out of range", id)
	node := g.nodes[id]
	from := node.State

	if !isValidTransition(from, newState) {
		g.mu.Unlock()
		return &ErrNonMonotoneTransition{ID: id, From: from, To: newState}
	}

	node.State = newState
	listeners := make([]func(ChangedEvent), len(g.onChanged))
	copy(listeners, g.onChanged)
	g.mu.Unlock()

	evt := ChangedEvent{Node: node, From: from, To: newState}
	for _, fn := range listeners {
		fn(evt)
	}
	return nil
}

// Seal forbids further Add calls and fires the Sealed listeners
// exactly once.
func (g *Graph) Seal() {
	g.mu.Lock()
	if g.sealed {
		g.mu.Unlock()
		return
	}
	g.sealed = true
	listeners := make([]func(), len(g.onSealed))
	copy(listeners, g.onSealed)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Sealed reports whether the graph has been sealed.
func (g *Graph) Sealed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sealed
}

// StateCount returns the number of nodes currently in state s.
func (g *Graph) StateCount(s State) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, node := range g.nodes {
		if node.State == s {
			n++
		}
	}
	return n
}

// Len returns the total number of nodes in the graph.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// UpdateTimeoutIfLarger sets node id's Command.Timeout to tcTimeout if
// tcTimeout is larger than the node's current timeout, under g's lock.
// A node shared across test cases (deduplicated by command identity)
// may already be dispatching by the time a later referrer is enqueued,
// so this read-modify-write must not race with the executor reading
// Command.Timeout to arm the child's timer (spec.md §3: "node keeps
// the largest timeout any referrer requires").
func (g *Graph) UpdateTimeoutIfLarger(id NodeID, tcTimeout time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	model.Precondition(int(id) >= 0 && int(id) < len(g.nodes), "node id %d out of range", id)
	node := g.nodes[id]
	if tcTimeout > node.Command.Timeout {
		node.Command.Timeout = tcTimeout
	}
}

// Node returns the node for id.
func (g *Graph) Node(id NodeID) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	model.Precondition(int(id) >= 0 && int(id) < len(g.nodes), "node id %d out of range", id)
	return g.nodes[id]
}

// Lookup returns the node id for a command key, if one exists.
func (g *Graph) Lookup(key string) (NodeID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byKey[key]
	return id, ok
}

// Nodes returns an iterator over every node currently in the graph, in
// Add order.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		g.mu.Lock()
		snapshot := append([]*Node(nil), g.nodes...)
		g.mu.Unlock()

		for _, n := range snapshot {
			if !yield(n) {
				return
			}
		}
	}
}
