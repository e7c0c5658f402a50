//go:build !windows

package runner

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcessGroup starts cmd in its own process group so the
// whole descendant tree can be signalled as one unit on
// timeout/cancellation (spec.md §4.6), grounded on
// opal-lang-opal/core/decorator/local_session_unix.go.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the whole process group rooted at
// pid. Uses golang.org/x/sys/unix rather than the teacher's bare
// syscall.Kill, matching the pack's preference for x/sys
// (joeycumines-go-utilpkg/go.mod).
func killProcessGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}
