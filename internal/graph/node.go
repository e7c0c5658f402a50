package graph

import "github.com/suiterunner/harness/internal/model"

// NodeID identifies a Node within one Graph. IDs are assigned in
// Add order starting at 0 and are never reused.
type NodeID int

// Node is one command in the dependency graph: a command, a state, its
// dependencies, its dependents ("neededFor"), and a timingDependency
// flag (spec.md §4.2).
type Node struct {
	ID      NodeID
	Command model.Command
	State   State

	// Deps are the nodes this node depends on.
	Deps []NodeID
	// NeededFor are the nodes that depend on this node.
	NeededFor []NodeID

	// TimingDependency, when true, means this node may advance once
	// its Deps reach any terminal state, regardless of success. When
	// false (the default), this node advances only once its Deps are
	// all Successful (spec.md §3, GLOSSARY "Timing dependency").
	TimingDependency bool
}
