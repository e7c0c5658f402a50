package model

import (
	"errors"
	"time"
)

// Expectation is a bitmask of possible test outcomes, matching the
// small enum named in spec.md §3.
type Expectation uint16

const (
	ExpectPass Expectation = 1 << iota
	ExpectFail
	ExpectCrash
	ExpectTimeout
	ExpectCompileTimeError
	ExpectRuntimeError
	ExpectStaticWarning
	ExpectSyntaxError
	ExpectSkip
	ExpectSkipByDesign
	ExpectSlow
	ExpectExtraSlow
)

// Has reports whether e includes all bits set in other.
func (e Expectation) Has(other Expectation) bool {
	return e&other == other
}

// ConfigHandle opaquely identifies the configuration (architecture,
// mode, compiler, runtime) a TestCase is running under. The scheduler
// never interprets it; it is only used for display and for keying VM
// batch commands alongside display name (spec.md §4.8 rule 6).
type ConfigHandle string

// TestCase is a named, ordered sequence of Commands plus its expected
// outcomes (spec.md §3).
type TestCase struct {
	Name        string
	Commands    []Command
	Config      ConfigHandle
	Expectation Expectation
}

// Validate enforces the TestCase invariant: commands is non-empty.
func (t TestCase) Validate() error {
	if len(t.Commands) == 0 {
		return errNoCommands
	}
	return nil
}

// Timeout computes the effective per-command timeout: base, or base*4
// if the test case is marked Slow, or base*8 if ExtraSlow (spec.md §3).
// ExtraSlow takes precedence if both bits happen to be set.
func (t TestCase) Timeout(base time.Duration) time.Duration {
	switch {
	case t.Expectation.Has(ExpectExtraSlow):
		return base * 8
	case t.Expectation.Has(ExpectSlow):
		return base * 4
	default:
		return base
	}
}

// IsFinished reports whether t is done given the outputs collected so
// far, keyed by Command.Key(). True iff the last command has output,
// or any earlier command failed (spec.md §3).
func (t TestCase) IsFinished(outputs map[string]CommandOutput) bool {
	Precondition(len(t.Commands) > 0, "test case %q has no commands", t.Name)

	last := len(t.Commands) - 1
	if _, ok := outputs[t.Commands[last].Key()]; ok {
		return true
	}
	for i := 0; i < last; i++ {
		out, ok := outputs[t.Commands[i].Key()]
		if ok && !out.Successful() {
			return true
		}
	}
	return false
}

var errNoCommands = errors.New("test case must have at least one command")
