package model

import "time"

// NonUTF8ExitCode is the sentinel exit code substituted when a
// command's captured output was not valid UTF-8 but it otherwise
// exited zero, forcing the result to read as a failure (spec.md §6).
const NonUTF8ExitCode = 0xFFFD

// CommandOutput is the result of running one Command once (spec.md §3).
type CommandOutput struct {
	ExitCode           int
	TimedOut           bool
	Stdout             []byte
	Stderr             []byte
	Duration           time.Duration
	Pid                int
	CompilationSkipped bool
	Diagnostics        []byte
}

// Successful is the predicate the graph uses to decide whether a node
// may be marked Successful: zero exit code and not timed out.
func (o CommandOutput) Successful() bool {
	return !o.TimedOut && o.ExitCode == 0
}

// CanRunDependentCommands mirrors Successful: the Command Queue uses
// this (spec.md §4.5) to decide whether to report "successful" or
// "failed" to the graph after a command completes.
func (o CommandOutput) CanRunDependentCommands() bool {
	return o.Successful()
}
