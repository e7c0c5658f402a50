// Package model holds the scheduler's content-addressed data types:
// Command, TestCase, CommandOutput, and the expectation/state enums
// layered on top of them.
package model

import (
	"fmt"
	"runtime"
)

// Precondition checks an input contract at function entry. Panics with
// a PRECONDITION VIOLATION if condition is false.
func Precondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Postcondition checks an output contract before function return.
func Postcondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("POSTCONDITION", format, args...)
	}
}

// Invariant checks an internal consistency condition. Violations are
// scheduler bugs, never user errors (spec: "Scheduler invariant
// violations ... must abort the run with a diagnostic").
func Invariant(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

// NotNil panics if value is a nil pointer/interface.
func NotNil(value interface{}, name string) {
	if value == nil {
		fail("PRECONDITION", "%s must not be nil", name)
	}
}

func fail(kind, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	_, file, line, ok := runtime.Caller(2)
	if ok {
		panic(fmt.Sprintf("%s VIOLATION at %s:%d: %s", kind, file, line, msg))
	}
	panic(fmt.Sprintf("%s VIOLATION: %s", kind, msg))
}
