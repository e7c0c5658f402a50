// Package enqueue expands test suites into graph nodes (the Test Case
// Enqueuer, spec.md §4.3) and promotes nodes whose dependencies have
// settled (the Command Enqueuer, spec.md §4.4).
package enqueue

import (
	"context"

	"github.com/suiterunner/harness/internal/model"
)

// SuiteSource is the external collaborator that discovers test cases
// for one suite (spec.md §1: "test discovery and parsing of
// expectations" is explicitly out of THE CORE's scope). The Enqueuer
// only consumes the TestCase values it returns.
type SuiteSource interface {
	TestCases(ctx context.Context) ([]model.TestCase, error)
}
