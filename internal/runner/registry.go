package runner

import "github.com/suiterunner/harness/internal/model"

// Outcome is the per-job result reported by a batch worker's
// `>>> TEST <OUTCOME> ...` status line (spec.md §4.7).
type Outcome string

const (
	OutcomePass      Outcome = "PASS"
	OutcomeFail      Outcome = "FAIL"
	OutcomeOK        Outcome = "OK"
	OutcomeCrash     Outcome = "CRASH"
	OutcomeTimeout   Outcome = "TIMEOUT"
	OutcomeParseFail Outcome = "PARSE_FAIL"
)

// exitCodeForOutcome implements the outcome-to-exit-code mapping from
// spec.md §4.7.
func exitCodeForOutcome(o Outcome) int {
	switch o {
	case OutcomeOK, OutcomePass:
		return 0
	case OutcomeCrash:
		return 253
	case OutcomeParseFail:
		return 245
	default: // FAIL, TIMEOUT, and any unrecognized outcome
		return 1
	}
}

// jsonRequestRunners is the set of runner types that speak the
// JSON-array request protocol on stdin rather than space-joined
// arguments. SPEC_FULL.md §3 resolves the "JSON mode for fasta" open
// question by scoping it to exactly this literal runner type, the way
// a small registration table (grounded on
// opal-lang-opal/core/decorator/registry.go's map-backed Register/
// Lookup pattern) would: new runner types default to space-joined
// unless explicitly registered here.
var jsonRequestRunners = map[model.RunnerType]bool{
	"fasta": true,
}

// usesJSONRequest reports whether runnerType's batch protocol encodes
// the request line as a JSON array instead of space-joined arguments.
func usesJSONRequest(runnerType model.RunnerType) bool {
	return jsonRequestRunners[runnerType]
}
