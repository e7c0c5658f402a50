// Package probe implements the platform stack-capture probes used by
// the one-shot runner on timeout: a best-effort external
// debugger/profiler invocation per descendant pid, plus pid discovery
// for the process's descendant tree (spec.md §4.6, §6).
//
// Paths and arguments are grounded on
// opal-lang-opal/core/decorator/local_session.go's
// exec.CommandContext usage, generalized from running the test command
// itself to running a fixed external debugger against a target pid.
package probe

import (
	"bytes"
	"context"
	"fmt"
)

// Prober captures stack traces of a command's descendant processes.
// Every path is independently configurable so a harness running in a
// container or CI image with the tools installed elsewhere still
// works (spec.md §6: "probe paths and commands configurable").
type Prober struct {
	EuStackPath string // Linux: eu-stack
	SamplePath  string // macOS: /usr/bin/sample
	CdbPath     string // Windows: cdb.exe, resolved against the configured SDK path
}

// New creates a Prober with the conventional default tool locations.
func New() *Prober {
	return &Prober{
		EuStackPath: "eu-stack",
		SamplePath:  "/usr/bin/sample",
		CdbPath:     "cdb.exe",
	}
}

// CaptureAll walks rootPID's descendant tree and runs the
// platform-specific debugger against every pid found, concatenating
// their output with a banner per pid. Capture is always best-effort:
// a pid that has already exited, or a debugger that fails to run, is
// recorded and skipped rather than treated as a hard error.
func (p *Prober) CaptureAll(ctx context.Context, rootPID int) []byte {
	pids := append([]int{rootPID}, descendantPIDs(rootPID)...)

	var out bytes.Buffer
	for _, pid := range pids {
		fmt.Fprintf(&out, "--- stack capture for pid %d ---\n", pid)
		captured, err := p.captureOne(ctx, pid)
		if err != nil {
			fmt.Fprintf(&out, "(capture failed: %v)\n", err)
			continue
		}
		out.Write(captured)
		out.WriteByte('\n')
	}
	return out.Bytes()
}
