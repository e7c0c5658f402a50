// Package harness wires the Enqueuer, Command Enqueuer, Command Queue,
// Command Executor, and Test Case Completer together, runs the loop
// that forwards finished test cases to a Listener, and owns the
// inactivity watchdog. Commands themselves are dispatched by the
// Command Queue on their own goroutines.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/suiterunner/harness/internal/complete"
	"github.com/suiterunner/harness/internal/enqueue"
	"github.com/suiterunner/harness/internal/exec"
	"github.com/suiterunner/harness/internal/graph"
	"github.com/suiterunner/harness/internal/model"
	"github.com/suiterunner/harness/internal/queue"
	"github.com/suiterunner/harness/internal/runner"
)

// Listener receives the harness's public lifecycle callbacks (spec.md
// §6: testAdded/allTestsKnown/done/allDone), the seam an external
// progress-reporting UI plugs into.
type Listener interface {
	TestAdded(tc model.TestCase)
	AllTestsKnown()
	Done(tc complete.CompletedCase)
	AllDone()
}

// NopListener implements Listener with no-ops, for callers that only
// want the run's error, not its events.
type NopListener struct{}

func (NopListener) TestAdded(model.TestCase)    {}
func (NopListener) AllTestsKnown()              {}
func (NopListener) Done(complete.CompletedCase) {}
func (NopListener) AllDone()                    {}

// Harness owns one run's components for its lifetime: one graph, one
// enqueuer, one queue, one executor, one completer.
type Harness struct {
	cfg Config
	log *slog.Logger

	graph     *graph.Graph
	enqueuer  *enqueue.Enqueuer
	queue     *queue.Queue
	executor  *exec.Executor
	completer *complete.Completer
}

// New builds a Harness from cfg. externals supplies the collaborators
// the Command Executor needs for browser/script/device commands; any
// of its fields may be nil if the suite never dispatches that kind.
func New(ctx context.Context, cfg Config, externals Externals, log *slog.Logger) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	g := graph.New()
	enqueuer := enqueue.New(g)
	enqueue.NewCommandEnqueuer(g)

	oneShot := runner.NewOneShotRunner(cfg.MaxStdioDelay, log)
	batch := runner.NewBatchRunnerPool(cfg.BatchExecutable, cfg.MaxBatchWorkersPerType, log)

	executor := &exec.Executor{
		OneShot:   oneShot,
		Batch:     batch,
		BatchMode: cfg.BatchMode,
		Browser:   externals.Browser,
		Devices:   externals.Devices,
		Scripts:   externals.Scripts,
		Log:       log,
	}

	q := queue.New(ctx, g, executor, cfg.MaxProcesses, cfg.MaxBrowserProcesses, log)
	completer := complete.New(enqueuer, log)

	return &Harness{
		cfg:       cfg,
		log:       log,
		graph:     g,
		enqueuer:  enqueuer,
		queue:     q,
		executor:  executor,
		completer: completer,
	}, nil
}

// Externals bundles the Command Executor's named-but-unimplemented
// collaborators (spec.md §1 out-of-scope list).
type Externals struct {
	Browser exec.BrowserController
	Devices exec.DevicePool
	Scripts exec.ScriptRunner
}

// Run discovers every source's test cases, expands and seals the
// graph, then drains finished test cases to listener until the queue
// shuts down. Blocks until the run completes or ctx is cancelled.
func (h *Harness) Run(ctx context.Context, sources []enqueue.SuiteSource, listener Listener) error {
	if listener == nil {
		listener = NopListener{}
	}

	for _, source := range sources {
		before := len(h.enqueuer.TestCases())
		if err := h.enqueuer.AddSuite(ctx, source, h.cfg.Repeat, h.cfg.BaseTimeout); err != nil {
			return fmt.Errorf("add suite: %w", err)
		}
		added := h.enqueuer.TestCases()[before:]
		for _, tc := range added {
			listener.TestAdded(*tc)
		}
	}
	h.enqueuer.Seal()
	listener.AllTestsKnown()

	go h.completer.Run(h.queue.Results())

	watchdog := time.NewTimer(h.cfg.WatchdogInactivity)
	defer watchdog.Stop()

	for {
		select {
		case tc, ok := <-h.completer.Finished():
			if !ok {
				listener.AllDone()
				return nil
			}
			resetTimer(watchdog, h.cfg.WatchdogInactivity)
			listener.Done(tc)

		case <-watchdog.C:
			h.dumpDiagnostics()
			resetTimer(watchdog, h.cfg.WatchdogInactivity)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// dumpDiagnostics writes the graph's per-state counters and every
// non-terminal node's display name to stderr (spec.md §5: "a watchdog
// timer ... dumps the graph, per-state counters, and queue contents to
// stderr for diagnosis").
func (h *Harness) dumpDiagnostics() {
	fmt.Fprintln(os.Stderr, "harness: watchdog fired, no command finished recently")
	for _, s := range []graph.State{
		graph.Initialized, graph.Waiting, graph.Enqueuing, graph.Processing,
		graph.Successful, graph.Failed, graph.UnableToRun,
	} {
		fmt.Fprintf(os.Stderr, "  %s: %d\n", s, h.graph.StateCount(s))
	}
	for n := range h.graph.Nodes() {
		if !n.State.Terminal() {
			fmt.Fprintf(os.Stderr, "  pending: %s [%s]\n", n.Command.DisplayName, n.State)
		}
	}
}
