// Package complete implements the Test Case Completer (spec.md §4.9):
// it reassembles finished command outputs into finished test cases.
package complete

import (
	"log/slog"
	"sync"

	"github.com/suiterunner/harness/internal/model"
	"github.com/suiterunner/harness/internal/queue"
)

// ReferrerLookup exposes the Enqueuer's test-case index: every test
// case whose command chain includes the node for a given command key.
type ReferrerLookup interface {
	Referrers(key string) []*model.TestCase
}

// CompletedCase pairs a finished test case with the outputs of the
// commands it actually ran, keyed by Command.Key(), so a downstream
// consumer (the console reporter) can compute its result without
// re-deriving the Completer's own bookkeeping.
type CompletedCase struct {
	TestCase model.TestCase
	Outputs  map[string]model.CommandOutput
}

// Completer consumes the Command Queue's result stream and, for each
// finished command, attaches its output to every test case that
// references it, emitting a test case on Finished exactly once its
// IsFinished predicate becomes true (spec.md §4.9).
type Completer struct {
	lookup ReferrerLookup
	log    *slog.Logger

	mu      sync.Mutex
	outputs map[string]model.CommandOutput
	emitted map[*model.TestCase]bool

	finished chan CompletedCase
}

// New creates a Completer that resolves a command's referring test
// cases through lookup.
func New(lookup ReferrerLookup, log *slog.Logger) *Completer {
	return &Completer{
		lookup:   lookup,
		log:      log,
		outputs:  make(map[string]model.CommandOutput),
		emitted:  make(map[*model.TestCase]bool),
		finished: make(chan CompletedCase),
	}
}

// Finished streams each test case exactly once, as soon as it has
// enough command outputs to satisfy IsFinished.
func (c *Completer) Finished() <-chan CompletedCase { return c.finished }

// Run drains results until the channel closes (the queue has shut
// down), then closes Finished. Intended to run on its own goroutine
// for the lifetime of one harness run.
func (c *Completer) Run(results <-chan queue.Result) {
	for r := range results {
		c.handleResult(r)
	}
	close(c.finished)
}

func (c *Completer) handleResult(r queue.Result) {
	key := r.Node.Command.Key()

	c.mu.Lock()
	c.outputs[key] = r.Output
	referrers := c.lookup.Referrers(key)

	var toEmit []CompletedCase
	for _, tc := range referrers {
		if !tc.IsFinished(c.outputs) {
			continue
		}
		if c.emitted[tc] {
			if c.log != nil {
				c.log.Error("test case emitted more than once", "test", tc.Name)
			}
			continue
		}
		c.emitted[tc] = true
		toEmit = append(toEmit, CompletedCase{TestCase: *tc, Outputs: outputsFor(tc, c.outputs)})
	}
	c.mu.Unlock()

	for _, cc := range toEmit {
		c.finished <- cc
	}
}

// outputsFor extracts just tc's own command outputs from the
// Completer's running map, so each CompletedCase carries a small,
// self-contained snapshot rather than a reference to shared state.
func outputsFor(tc *model.TestCase, all map[string]model.CommandOutput) map[string]model.CommandOutput {
	snapshot := make(map[string]model.CommandOutput, len(tc.Commands))
	for _, c := range tc.Commands {
		if out, ok := all[c.Key()]; ok {
			snapshot[c.Key()] = out
		}
	}
	return snapshot
}
