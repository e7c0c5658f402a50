// Package runner implements the Running Process (one-shot child
// processes, spec.md §4.6) and the Batch Runner (persistent worker
// pool, spec.md §4.7).
package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/suiterunner/harness/internal/model"
	"github.com/suiterunner/harness/internal/outlog"
	"github.com/suiterunner/harness/internal/probe"
)

// proxyVars are stripped from the inherited host environment before a
// child is spawned (spec.md §6).
var proxyVars = map[string]bool{
	"http_proxy":  true,
	"https_proxy": true,
	"no_proxy":    true,
	"HTTP_PROXY":  true,
	"HTTPS_PROXY": true,
	"NO_PROXY":    true,
}

// OutputFreshnessChecker decides whether a command's declared output
// file is already up to date, letting the One-Shot Runner skip
// re-running it (spec.md §4.6). The mechanism by which freshness is
// determined (build-graph timestamps, content hash, ...) is owned by
// the caller; the runner only consults the predicate.
type OutputFreshnessChecker interface {
	UpToDate(cmd model.Command) bool
}

// AlwaysStale never reports a command as up to date; the default used
// when no freshness checker is configured.
type AlwaysStale struct{}

// UpToDate always returns false.
func (AlwaysStale) UpToDate(model.Command) bool { return false }

// OneShotRunner executes non-batch-eligible commands as fresh child
// processes, one per call.
type OneShotRunner struct {
	Prober        *probe.Prober
	Freshness     OutputFreshnessChecker
	MaxStdioDelay time.Duration
	Log           *slog.Logger
}

// NewOneShotRunner creates a OneShotRunner with the given grace window
// for stdio drain after exit (spec.md §4.6 MAX_STDIO_DELAY).
func NewOneShotRunner(maxStdioDelay time.Duration, log *slog.Logger) *OneShotRunner {
	return &OneShotRunner{
		Prober:        probe.New(),
		Freshness:     AlwaysStale{},
		MaxStdioDelay: maxStdioDelay,
		Log:           log,
	}
}

// Run executes cmd with the given per-command timeout, returning its
// collected output.
func (r *OneShotRunner) Run(ctx context.Context, c model.Command, timeout time.Duration) (model.CommandOutput, error) {
	if c.OutputFile != "" && r.Freshness.UpToDate(c) {
		return model.CommandOutput{ExitCode: 0, CompilationSkipped: true}, nil
	}

	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exe := exec.CommandContext(runCtx, c.Executable, c.Args...)
	exe.Dir = c.Dir
	exe.Env = sanitizedEnv(c.Env)
	configureProcessGroup(exe)

	stdoutLog := newOutputLog(c.OutputFile)
	defer stdoutLog.Close()
	stderrLog := outlog.New()
	defer stderrLog.Close()

	stdoutPipe, err := exe.StdoutPipe()
	if err != nil {
		return model.CommandOutput{ExitCode: 1}, err
	}
	stderrPipe, err := exe.StderrPipe()
	if err != nil {
		return model.CommandOutput{ExitCode: 1}, err
	}

	stdin, err := exe.StdinPipe()
	if err == nil {
		_ = stdin.Close()
	}

	if err := exe.Start(); err != nil {
		return model.CommandOutput{ExitCode: 1}, err
	}

	// copyDone closes once both pipes have been fully drained, giving
	// the grace window below something real to time out on.
	copyDone := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = io.Copy(stdoutLog, stdoutPipe)
		}()
		go func() {
			defer wg.Done()
			_, _ = io.Copy(stderrLog, stderrPipe)
		}()
		wg.Wait()
		close(copyDone)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	waitErr := make(chan error, 1)
	go func() { waitErr <- exe.Wait() }()

	var (
		timedOut    bool
		diagnostics []byte
	)

	select {
	case <-timer.C:
		timedOut = true
		diagnostics = r.Prober.CaptureAll(context.Background(), exe.Process.Pid)
		killProcessGroup(exe.Process.Pid)
		<-waitErr
	case err := <-waitErr:
		if err != nil && r.Log != nil {
			r.Log.Debug("command exited with error", "command", c.DisplayName, "error", err)
		}
	}

	exitCode := exitCodeOf(exe)

	if !drainWithin(copyDone, r.MaxStdioDelay) {
		if r.Log != nil {
			r.Log.Warn("stdio did not drain within grace window", "command", c.DisplayName)
		}
	}

	stdoutOut := stdoutLog.Finalize()
	stderrOut := stderrLog.Finalize()

	if (stdoutOut.HasNonUTF8 || stderrOut.HasNonUTF8) && exitCode == 0 {
		exitCode = model.NonUTF8ExitCode
	}

	return model.CommandOutput{
		ExitCode:    exitCode,
		TimedOut:    timedOut,
		Stdout:      stdoutOut.Bytes,
		Stderr:      stderrOut.Bytes,
		Duration:    time.Since(start),
		Pid:         pidOf(exe),
		Diagnostics: diagnostics,
	}, nil
}

// sanitizedEnv builds the child's environment: host env minus proxy
// vars, plus the two glibc compatibility vars, plus the command's own
// overrides applied last (spec.md §6).
func sanitizedEnv(overrides map[string]string) []string {
	base := os.Environ()
	env := make([]string, 0, len(base)+len(overrides)+2)
	for _, kv := range base {
		name, _, ok := splitEnv(kv)
		if ok && proxyVars[name] {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "GLIBCPP_FORCE_NEW=1", "GLIBCXX_FORCE_NEW=1")
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

func splitEnv(kv string) (name, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func newOutputLog(outputFile string) *outlog.Log {
	if outputFile == "" {
		return outlog.New()
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return outlog.New()
	}
	return outlog.NewTee(f)
}

func exitCodeOf(exe *exec.Cmd) int {
	if exe.ProcessState == nil {
		return -1
	}
	return exe.ProcessState.ExitCode()
}

func pidOf(exe *exec.Cmd) int {
	if exe.Process == nil {
		return 0
	}
	return exe.Process.Pid
}

// drainWithin blocks until copyDone closes (both stdout/stderr pipes
// have been fully read) or d elapses, whichever comes first (spec.md
// §4.6 MAX_STDIO_DELAY: "if it elapses, stdio is cancelled and a
// warning is logged").
func drainWithin(copyDone <-chan struct{}, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	select {
	case <-copyDone:
		return true
	case <-time.After(d):
		return false
	}
}
