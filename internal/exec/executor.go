// Package exec implements the Command Executor (spec.md §4.8): the
// dispatch table that routes each graph node's command to the right
// runner (browser, batch, script, device, or one-shot process) and
// applies the retry policy.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/suiterunner/harness/internal/graph"
	"github.com/suiterunner/harness/internal/model"
	"github.com/suiterunner/harness/internal/runner"
)

// oomMarker is the out-of-memory substring a crashed VM-kernel compile
// must contain to be retried (spec.md §4.8).
const oomMarker = "Exhausted heap space, trying to allocat"

// Xvfb flakiness markers (spec.md §4.8 rule b), checked only on Linux.
const (
	displayNotOpenableMarker = "Cannot open display"
	xvfbReturnCodeMarker     = "Failed to run command. return code=1"
)

// BrowserController submits a browser test command to the
// per-configuration browser harness and waits for its result. External
// collaborator (spec.md §1 out-of-scope list); not implemented here.
type BrowserController interface {
	Run(ctx context.Context, cmd model.Command, timeout time.Duration) (model.CommandOutput, error)
}

// ScriptRunner executes a script command in-process, without spawning
// a child. External collaborator (spec.md §1 out-of-scope list).
type ScriptRunner interface {
	Run(ctx context.Context, cmd model.Command) (model.CommandOutput, error)
}

// Device is a single acquired device handle capable of running shell
// steps (spec.md §4.8 rule 5). External collaborator.
type Device interface {
	RunStep(ctx context.Context, step string, timeout time.Duration) (model.CommandOutput, error)
}

// DevicePool hands out Devices for the duration of one device-push
// command and reclaims them afterward. External collaborator (spec.md
// §1 out-of-scope list).
type DevicePool interface {
	Acquire(ctx context.Context) (Device, error)
	Release(d Device)
}

// Executor is the Command Executor: it implements queue.Executor,
// routing each node's command to a runner per the fixed dispatch order
// (spec.md §4.8) and retrying transient failures up to the command's
// retry budget.
type Executor struct {
	OneShot *runner.OneShotRunner
	Batch   *runner.BatchRunnerPool

	// BatchMode gates dispatch rule 3: certain compile commands
	// (dart2js, analyzer, dartdevc, dartdevk, fasta) only go to the
	// batch pool when this is enabled; otherwise they fall through to
	// the default one-shot path.
	BatchMode bool

	Browser BrowserController
	Devices DevicePool
	Scripts ScriptRunner

	Log *slog.Logger
}

// Dispatch runs n's command to completion (including retries) and
// returns its output. Satisfies queue.Executor.
func (e *Executor) Dispatch(ctx context.Context, n *graph.Node) (model.CommandOutput, error) {
	cmd := n.Command

	var out model.CommandOutput
	var err error
	attempts := cmd.RetryBudget + 1
	for attempt := 0; attempt < attempts; attempt++ {
		out, err = e.dispatchOnce(ctx, cmd)
		if err != nil {
			return out, err
		}
		if attempt == attempts-1 || !isRetryable(cmd, out) {
			break
		}
		if e.Log != nil {
			e.Log.Debug("retrying transient failure", "command", cmd.DisplayName, "attempt", attempt+1)
		}
	}
	return out, nil
}

// dispatchOnce runs cmd exactly once, choosing the runner per the
// first-match-wins rules of spec.md §4.8.
func (e *Executor) dispatchOnce(ctx context.Context, cmd model.Command) (model.CommandOutput, error) {
	switch {
	case cmd.Kind == model.KindBrowser:
		model.NotNil(e.Browser, "exec.Executor.Browser")
		return e.Browser.Run(ctx, cmd, cmd.Timeout)

	case cmd.Kind == model.KindKernelCompile:
		return e.runBatch(ctx, cmd)

	case cmd.Kind == model.KindBatchCompile && e.BatchMode:
		return e.runBatch(ctx, cmd)

	case cmd.Kind == model.KindScript:
		model.NotNil(e.Scripts, "exec.Executor.Scripts")
		return e.Scripts.Run(ctx, cmd)

	case cmd.Kind == model.KindDevicePush:
		return e.runDevicePush(ctx, cmd)

	case cmd.Kind == model.KindVMBatch:
		return e.runBatch(ctx, cmd)

	default:
		return e.OneShot.Run(ctx, cmd, cmd.Timeout)
	}
}

func (e *Executor) runBatch(ctx context.Context, cmd model.Command) (model.CommandOutput, error) {
	model.NotNil(e.Batch, "exec.Executor.Batch")
	poolKey := batchPoolKey(cmd)
	return e.Batch.Run(ctx, cmd.RunnerType, poolKey, cmd.Args, cmd.Env, cmd.Timeout)
}

// batchPoolKey picks the pool key per command kind: VM batches reuse
// workers keyed by display name + script file (spec.md §4.8 rule 6);
// compile/kernel batches reuse workers keyed by their environment
// overrides (spec.md §4.7).
func batchPoolKey(cmd model.Command) string {
	if cmd.Kind == model.KindVMBatch {
		return cmd.DisplayName + "|" + cmd.ScriptFile
	}
	return runner.EnvHash(cmd.Env)
}

// runDevicePush acquires a device, runs cmd's shell steps in order
// with a per-step stopwatch, concatenates their outputs into one
// synthetic result, and always releases the device (spec.md §4.8 rule
// 5) — guaranteed release on every exit path, grounded on the
// teacher's pipeline runner's defer-based cleanup.
func (e *Executor) runDevicePush(ctx context.Context, cmd model.Command) (out model.CommandOutput, err error) {
	model.NotNil(e.Devices, "exec.Executor.Devices")

	dev, acquireErr := e.Devices.Acquire(ctx)
	if acquireErr != nil {
		return model.CommandOutput{ExitCode: -1}, fmt.Errorf("acquire device for %s: %w", cmd.DisplayName, acquireErr)
	}
	defer e.Devices.Release(dev)

	start := time.Now()
	var stdout, stderr bytes.Buffer
	exitCode := 0

	for _, step := range cmd.Steps {
		stepStart := time.Now()
		stepOut, stepErr := dev.RunStep(ctx, step, cmd.Timeout)
		if stepErr != nil {
			return model.CommandOutput{ExitCode: -1, Duration: time.Since(start)}, fmt.Errorf("device step %q: %w", step, stepErr)
		}

		fmt.Fprintf(&stdout, "$ %s (%s)\n", step, time.Since(stepStart))
		stdout.Write(stepOut.Stdout)
		stderr.Write(stepOut.Stderr)
		exitCode = stepOut.ExitCode

		if stepOut.ExitCode != 0 {
			break
		}
	}

	return model.CommandOutput{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}, nil
}

// isRetryable evaluates a finished command's output against the two
// transient-failure signatures (spec.md §4.8, §9 Open Questions). The
// source reproduced here decodes stderr into two identically-named
// local variables, stdout and stderr, before scanning both for the
// out-of-memory and display markers — a quirk documented rather than
// silently fixed: a marker that appears only in out.Stdout is not seen.
func isRetryable(cmd model.Command, out model.CommandOutput) bool {
	stdout, stderr := out.Stderr, out.Stderr

	if cmd.Kind == model.KindKernelCompile && out.ExitCode == 253 {
		if bytes.Contains(stdout, []byte(oomMarker)) || bytes.Contains(stderr, []byte(oomMarker)) {
			return true
		}
	}

	if runtime.GOOS == "linux" {
		combined := string(stdout) + "\n" + string(stderr)
		for _, line := range strings.Split(combined, "\n") {
			if strings.Contains(line, displayNotOpenableMarker) || strings.Contains(line, xvfbReturnCodeMarker) {
				return true
			}
		}
	}

	return false
}

// Cleanup releases every resource the executor owns, invoked exactly
// once after the queue drains (spec.md §5).
func (e *Executor) Cleanup() error {
	if e.Batch != nil {
		e.Batch.Shutdown()
	}
	return nil
}
