package enqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/suiterunner/harness/internal/graph"
	"github.com/suiterunner/harness/internal/model"
)

// ErrInvalidRepeat is returned by AddSuite when repeat < 1. spec.md
// leaves "what does repeat-count 0 mean?" open; SPEC_FULL.md §3
// resolves it by rejecting the call outright rather than silently
// treating it as 1 or as "skip this suite".
var ErrInvalidRepeat = errors.New("enqueue: repeat count must be >= 1")

// Enqueuer is the Test Case Enqueuer (spec.md §4.3): it expands each
// suite's test cases into repeat copies, wires per-test-case command
// chains and cross-copy timing edges into the Graph, deduplicates
// identical commands onto a single node, and tracks which test cases
// refer to each node so the Completer can later find them.
type Enqueuer struct {
	graph *graph.Graph

	mu        sync.Mutex
	nodeByKey map[string]graph.NodeID
	referrers map[string][]*model.TestCase
	testCases []*model.TestCase
}

// New creates an Enqueuer that adds nodes to g.
func New(g *graph.Graph) *Enqueuer {
	return &Enqueuer{
		graph:     g,
		nodeByKey: make(map[string]graph.NodeID),
		referrers: make(map[string][]*model.TestCase),
	}
}

// AddSuite discovers source's test cases and expands each one into
// `repeat` copies. Copy i's commands form a chain (command k+1 depends
// on command k); additionally, for i > 0, copy i's first command
// carries a timing dependency on copy i-1's last command, so repeats
// run in sequence without one repeat's failure blocking the next
// (spec.md §4.3, GLOSSARY "Timing dependency").
//
// baseTimeout is the per-command timeout before any Slow/ExtraSlow
// multiplier (spec.md §4.6's test.timeout). When a command is shared
// across test cases with different multipliers, the node keeps the
// largest timeout any referrer requires.
func (e *Enqueuer) AddSuite(ctx context.Context, source SuiteSource, repeat int, baseTimeout time.Duration) error {
	if repeat < 1 {
		return ErrInvalidRepeat
	}

	cases, err := source.TestCases(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, tc := range cases {
		if err := tc.Validate(); err != nil {
			return err
		}

		var prevCopyLast *graph.NodeID
		for i := 0; i < repeat; i++ {
			commands := make([]model.Command, len(tc.Commands))
			for j, c := range tc.Commands {
				commands[j] = c.IndexedCopy(i)
			}
			copyTC := &model.TestCase{
				Name:        tc.Name,
				Commands:    commands,
				Config:      tc.Config,
				Expectation: tc.Expectation,
			}
			e.testCases = append(e.testCases, copyTC)
			tcTimeout := tc.Timeout(baseTimeout)

			var prevNode *graph.NodeID
			for j, c := range commands {
				var deps []graph.NodeID
				timing := false
				switch {
				case j == 0 && prevCopyLast != nil:
					deps = []graph.NodeID{*prevCopyLast}
					timing = true
				case prevNode != nil:
					deps = []graph.NodeID{*prevNode}
				}

				key := c.Key()
				id, exists := e.nodeByKey[key]
				if !exists {
					c.Timeout = tcTimeout
					id, err = e.graph.Add(c, deps, timing)
					if err != nil {
						return err
					}
					e.nodeByKey[key] = id
				} else {
					e.graph.UpdateTimeoutIfLarger(id, tcTimeout)
				}
				e.referrers[key] = append(e.referrers[key], copyTC)

				idCopy := id
				prevNode = &idCopy
			}
			prevCopyLast = prevNode
		}
	}

	return nil
}

// Seal closes the graph to further Add calls. Called once every suite
// has been added (spec.md §4.2: "add may only be called before seal").
func (e *Enqueuer) Seal() {
	e.graph.Seal()
}

// Referrers returns the test cases whose command chain includes the
// node for key, in the order they were added. Used by the Completer to
// discover which test cases a finished command output belongs to.
func (e *Enqueuer) Referrers(key string) []*model.TestCase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*model.TestCase(nil), e.referrers[key]...)
}

// TestCases returns every expanded test case (including repeat copies)
// added so far.
func (e *Enqueuer) TestCases() []*model.TestCase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*model.TestCase(nil), e.testCases...)
}
