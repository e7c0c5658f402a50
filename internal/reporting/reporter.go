// Package reporting is an ambient console UI standing in for the
// "progress reporting" surface spec.md §1 keeps out of THE CORE: it
// consumes only the public testAdded/allTestsKnown/done/allDone
// callbacks (spec.md §6) and prints one colored line per finished test
// case.
package reporting

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/suiterunner/harness/internal/complete"
	"github.com/suiterunner/harness/internal/model"
)

// Result is the computed outcome of a finished test case, derived from
// its last command's output (spec.md §7: "a computed result that does
// not satisfy any expected outcome" is a user-visible failure).
type Result int

const (
	ResultPass Result = iota
	ResultFail
	ResultSkip
)

// Reporter prints one line per finished test case to the io.Writer
// given to New, satisfying harness.Listener.
type Reporter struct {
	out io.Writer

	total int
	seen  int
}

// New creates a Reporter writing to out.
func New(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// TestAdded counts a newly discovered test case.
func (r *Reporter) TestAdded(model.TestCase) {
	r.total++
}

// AllTestsKnown prints the suite size once discovery has finished.
func (r *Reporter) AllTestsKnown() {
	fmt.Fprintf(r.out, "running %d test case(s)\n", r.total)
}

// Done prints one colored PASS/FAIL/SKIP line for a finished test case.
func (r *Reporter) Done(cc complete.CompletedCase) {
	r.seen++
	result := computeResult(cc)

	line := fmt.Sprintf("[%d/%d] %s: %s", r.seen, r.total, resultLabel(result), cc.TestCase.Name)
	switch result {
	case ResultPass:
		color.New(color.FgGreen).Fprintln(r.out, line)
	case ResultSkip:
		color.New(color.FgYellow).Fprintln(r.out, line)
	default:
		color.New(color.FgRed).Fprintln(r.out, line)
	}
}

// AllDone prints the final tally.
func (r *Reporter) AllDone() {
	fmt.Fprintf(r.out, "done: %d/%d test case(s) ran\n", r.seen, r.total)
}

func resultLabel(r Result) string {
	switch r {
	case ResultPass:
		return "PASS"
	case ResultSkip:
		return "SKIP"
	default:
		return "FAIL"
	}
}

// computeResult derives a test case's pass/fail/skip verdict from its
// expectation bitmask and the outputs of the commands it actually ran
// (spec.md §7). A skip or skip-by-design expectation always reports
// Skip. A last command that timed out passes only if timeout is
// expected; one that failed passes if any failure-class outcome is
// expected. When an earlier command failed and the last command never
// ran, only fail, crash, compile-time-error and syntax-error count as
// Pass.
func computeResult(cc complete.CompletedCase) Result {
	exp := cc.TestCase.Expectation
	if exp.Has(model.ExpectSkip) || exp.Has(model.ExpectSkipByDesign) {
		return ResultSkip
	}

	last := cc.TestCase.Commands[len(cc.TestCase.Commands)-1]
	out, ranToCompletion := cc.Outputs[last.Key()]

	switch {
	case ranToCompletion && out.TimedOut:
		if exp.Has(model.ExpectTimeout) {
			return ResultPass
		}
		return ResultFail
	case ranToCompletion && out.Successful():
		if exp.Has(model.ExpectPass) {
			return ResultPass
		}
		return ResultFail
	case ranToCompletion:
		if exp.Has(model.ExpectFail) || exp.Has(model.ExpectCrash) ||
			exp.Has(model.ExpectCompileTimeError) || exp.Has(model.ExpectRuntimeError) ||
			exp.Has(model.ExpectStaticWarning) || exp.Has(model.ExpectSyntaxError) {
			return ResultPass
		}
		return ResultFail
	default:
		// An earlier command failed before the last one ever ran.
		if exp.Has(model.ExpectFail) || exp.Has(model.ExpectCrash) ||
			exp.Has(model.ExpectCompileTimeError) || exp.Has(model.ExpectSyntaxError) {
			return ResultPass
		}
		return ResultFail
	}
}
