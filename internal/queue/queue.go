// Package queue implements the Command Queue (spec.md §4.5): a bounded,
// two-cap scheduler that turns "enqueuing" graph nodes into dispatched
// commands and reports their outcome back to the graph.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/suiterunner/harness/internal/graph"
	"github.com/suiterunner/harness/internal/model"
)

// requeueDelay is the pause before retrying a tick after a browser-cap
// miss (spec.md §4.5: "the tick is rescheduled after a short delay").
const requeueDelay = 100 * time.Millisecond

// Executor dispatches one graph node's command and reports its output.
// internal/exec.Executor satisfies this.
type Executor interface {
	Dispatch(ctx context.Context, n *graph.Node) (model.CommandOutput, error)
	Cleanup() error
}

// Result pairs a finished node with its command output, delivered on
// the Queue's Results stream for the Completer to consume.
type Result struct {
	Node   *graph.Node
	Output model.CommandOutput
}

// Queue is the Command Queue. It subscribes to Graph changes, holds a
// FIFO ready deque, and dispatches commands under two concurrency
// caps: total in-flight processes and in-flight browser processes
// (browser commands additionally acquire the browser semaphore before
// the general one, per spec.md §4.5 and SPEC_FULL.md §4.5).
type Queue struct {
	ctx    context.Context
	g      *graph.Graph
	exec   Executor
	log    *slog.Logger

	totalSem   *semaphore.Weighted
	browserSem *semaphore.Weighted

	mu       sync.Mutex
	ready    []*graph.Node
	inFlight int

	results     chan Result
	done        chan struct{}
	doneClosed  bool
	cleanupOnce sync.Once
}

// New creates a Queue dispatching through exec, bounded by
// maxProcesses total and maxBrowserProcesses browser-kind commands,
// and begins observing g immediately.
func New(ctx context.Context, g *graph.Graph, exec Executor, maxProcesses, maxBrowserProcesses int, log *slog.Logger) *Queue {
	model.Precondition(maxProcesses > 0, "maxProcesses must be positive, got %d", maxProcesses)
	model.Precondition(maxBrowserProcesses >= 0, "maxBrowserProcesses must be non-negative, got %d", maxBrowserProcesses)

	q := &Queue{
		ctx:        ctx,
		g:          g,
		exec:       exec,
		log:        log,
		totalSem:   semaphore.NewWeighted(int64(maxProcesses)),
		browserSem: semaphore.NewWeighted(int64(maxBrowserProcesses)),
		results:    make(chan Result),
		done:       make(chan struct{}),
	}

	g.OnChanged(q.handleChanged)
	g.OnSealed(func() { q.maybeShutdown() })
	return q
}

// Results returns the stream of finished command outputs.
func (q *Queue) Results() <-chan Result { return q.results }

// Done closes once the queue has shut down (graph sealed, nothing
// ready or in flight, no node left in a pre-terminal state).
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) handleChanged(e graph.ChangedEvent) {
	if e.To != graph.Enqueuing {
		return
	}
	n := e.Node
	if err := q.g.ChangeState(n.ID, graph.Processing); err != nil {
		model.Invariant(false, "command queue: %v", err)
	}

	q.mu.Lock()
	if len(n.Deps) > 0 {
		// Follow-up work is inserted at the front to keep it hot.
		q.ready = append([]*graph.Node{n}, q.ready...)
	} else {
		q.ready = append(q.ready, n)
	}
	q.mu.Unlock()

	q.tick()
}

// tick dequeues as many ready commands as the current caps allow.
func (q *Queue) tick() {
	for {
		q.mu.Lock()
		if len(q.ready) == 0 {
			q.mu.Unlock()
			return
		}
		n := q.ready[0]
		isBrowser := n.Command.Kind == model.KindBrowser

		if isBrowser && !q.browserSem.TryAcquire(1) {
			// Browser cap hit: requeue at the back and retry shortly.
			q.ready = append(q.ready[1:], n)
			q.mu.Unlock()
			time.AfterFunc(requeueDelay, q.tick)
			return
		}

		if !q.totalSem.TryAcquire(1) {
			if isBrowser {
				q.browserSem.Release(1)
			}
			q.mu.Unlock()
			return
		}

		q.ready = q.ready[1:]
		q.inFlight++
		q.mu.Unlock()

		go q.dispatch(n, isBrowser)
	}
}

func (q *Queue) dispatch(n *graph.Node, isBrowser bool) {
	out, err := q.exec.Dispatch(q.ctx, n)
	if err != nil {
		q.log.Error("command dispatch failed", "command", n.Command.DisplayName, "error", err)
	}

	newState := graph.Failed
	if out.CanRunDependentCommands() {
		newState = graph.Successful
	}
	if err := q.g.ChangeState(n.ID, newState); err != nil {
		model.Invariant(false, "command queue: %v", err)
	}

	// The result is sent while the command still counts as in flight,
	// so maybeShutdown cannot close Results under a pending send.
	select {
	case q.results <- Result{Node: n, Output: out}:
	case <-q.ctx.Done():
	}

	q.mu.Lock()
	q.inFlight--
	q.totalSem.Release(1)
	if isBrowser {
		q.browserSem.Release(1)
	}
	q.mu.Unlock()

	q.tick()
	q.maybeShutdown()
}

func (q *Queue) maybeShutdown() {
	if !q.g.Sealed() {
		return
	}

	q.mu.Lock()
	idle := len(q.ready) == 0 && q.inFlight == 0
	q.mu.Unlock()
	if !idle {
		return
	}

	for n := range q.g.Nodes() {
		if !n.State.Terminal() {
			return
		}
	}

	q.cleanupOnce.Do(func() {
		if err := q.exec.Cleanup(); err != nil {
			q.log.Error("executor cleanup failed", "error", err)
		}
		q.mu.Lock()
		if !q.doneClosed {
			q.doneClosed = true
			close(q.results)
			close(q.done)
		}
		q.mu.Unlock()
	})
}
