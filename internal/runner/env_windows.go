//go:build windows

package runner

import (
	"os"
	"os/exec"
)

// configureProcessGroup is a no-op on Windows: Unix process groups
// don't exist there, grounded on
// opal-lang-opal/core/decorator/local_session_windows.go.
func configureProcessGroup(_ *exec.Cmd) {}

// killProcessGroup kills just the root process; Windows process trees
// are torn down via job objects in a fuller implementation, but the
// harness does not create one here (matches the teacher's
// best-effort Process.Kill fallback).
func killProcessGroup(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Kill()
}
