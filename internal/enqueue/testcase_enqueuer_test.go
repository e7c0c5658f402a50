package enqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suiterunner/harness/internal/enqueue"
	"github.com/suiterunner/harness/internal/graph"
	"github.com/suiterunner/harness/internal/model"
)

type fakeSource struct {
	cases []model.TestCase
	err   error
}

func (f fakeSource) TestCases(ctx context.Context) ([]model.TestCase, error) {
	return f.cases, f.err
}

func compileAndRun(testName string) model.TestCase {
	return model.TestCase{
		Name: testName,
		Commands: []model.Command{
			{Executable: "dart2js", DisplayName: "compileA", Kind: model.KindBatchCompile},
			{Executable: "dart", DisplayName: "runA_" + testName},
		},
		Expectation: model.ExpectPass,
	}
}

func TestAddSuiteWiresCommandChain(t *testing.T) {
	g := graph.New()
	e := enqueue.New(g)

	err := e.AddSuite(context.Background(), fakeSource{cases: []model.TestCase{compileAndRun("t1")}}, 1, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())

	compileID, ok := g.Lookup(model.Command{Executable: "dart2js", DisplayName: "compileA", Kind: model.KindBatchCompile}.Key())
	require.True(t, ok)
	run := g.Node(graph.NodeID(1))
	require.Equal(t, []graph.NodeID{compileID}, run.Deps)
}

func TestAddSuiteDeduplicatesSharedCommand(t *testing.T) {
	g := graph.New()
	e := enqueue.New(g)

	err := e.AddSuite(context.Background(), fakeSource{cases: []model.TestCase{
		compileAndRun("t1"),
		compileAndRun("t2"),
	}}, 1, time.Minute)
	require.NoError(t, err)

	// compileA is shared: only 3 nodes total (1 compile + 2 runs).
	require.Equal(t, 3, g.Len())

	key := model.Command{Executable: "dart2js", DisplayName: "compileA", Kind: model.KindBatchCompile}.Key()
	require.Len(t, e.Referrers(key), 2)
}

func TestAddSuiteRepeatCreatesTimingDependencyChain(t *testing.T) {
	g := graph.New()
	e := enqueue.New(g)

	single := model.TestCase{
		Name:     "solo",
		Commands: []model.Command{{Executable: "dart", DisplayName: "run"}},
	}

	err := e.AddSuite(context.Background(), fakeSource{cases: []model.TestCase{single}}, 3, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())

	copy1 := g.Node(graph.NodeID(1))
	require.True(t, copy1.TimingDependency)
	require.Equal(t, []graph.NodeID{0}, copy1.Deps)

	copy2 := g.Node(graph.NodeID(2))
	require.True(t, copy2.TimingDependency)
	require.Equal(t, []graph.NodeID{1}, copy2.Deps)

	copy0 := g.Node(graph.NodeID(0))
	require.False(t, copy0.TimingDependency)
	require.Empty(t, copy0.Deps)
}

func TestAddSuiteRejectsInvalidRepeat(t *testing.T) {
	g := graph.New()
	e := enqueue.New(g)

	err := e.AddSuite(context.Background(), fakeSource{cases: []model.TestCase{compileAndRun("t1")}}, 0, time.Minute)
	require.ErrorIs(t, err, enqueue.ErrInvalidRepeat)
}

func TestAddSuiteRejectsEmptyCommandsTestCase(t *testing.T) {
	g := graph.New()
	e := enqueue.New(g)

	bad := model.TestCase{Name: "empty"}
	err := e.AddSuite(context.Background(), fakeSource{cases: []model.TestCase{bad}}, 1, time.Minute)
	require.Error(t, err)
}

func TestAddSuiteSharedCommandKeepsLargestTimeout(t *testing.T) {
	g := graph.New()
	e := enqueue.New(g)

	shared := model.Command{Executable: "dart2js", DisplayName: "compileShared", Kind: model.KindBatchCompile}
	fast := model.TestCase{Name: "fast", Commands: []model.Command{shared}, Expectation: model.ExpectPass}
	slow := model.TestCase{Name: "slow", Commands: []model.Command{shared}, Expectation: model.ExpectPass | model.ExpectSlow}

	err := e.AddSuite(context.Background(), fakeSource{cases: []model.TestCase{fast}}, 1, time.Minute)
	require.NoError(t, err)
	err = e.AddSuite(context.Background(), fakeSource{cases: []model.TestCase{slow}}, 1, time.Minute)
	require.NoError(t, err)

	id, ok := g.Lookup(shared.Key())
	require.True(t, ok)
	require.Equal(t, 4*time.Minute, g.Node(id).Command.Timeout)
}

func TestSealPreventsFurtherAdds(t *testing.T) {
	g := graph.New()
	e := enqueue.New(g)
	e.Seal()

	err := e.AddSuite(context.Background(), fakeSource{cases: []model.TestCase{compileAndRun("t1")}}, 1, time.Minute)
	require.ErrorIs(t, err, graph.ErrSealed)
}
