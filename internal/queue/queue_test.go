package queue_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suiterunner/harness/internal/graph"
	"github.com/suiterunner/harness/internal/model"
	"github.com/suiterunner/harness/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubExecutor struct {
	mu        sync.Mutex
	dispatch  func(n *graph.Node) model.CommandOutput
	cleanups  int32
	dispatches int32
}

func (s *stubExecutor) Dispatch(ctx context.Context, n *graph.Node) (model.CommandOutput, error) {
	atomic.AddInt32(&s.dispatches, 1)
	s.mu.Lock()
	fn := s.dispatch
	s.mu.Unlock()
	if fn != nil {
		return fn(n), nil
	}
	return model.CommandOutput{ExitCode: 0}, nil
}

func (s *stubExecutor) Cleanup() error {
	atomic.AddInt32(&s.cleanups, 1)
	return nil
}

// drainResults consumes the Results stream the way the Completer does;
// dispatch blocks on each send until it is read.
func drainResults(q *queue.Queue) {
	for range q.Results() {
	}
}

func TestQueueDispatchesRootCommandAndShutsDown(t *testing.T) {
	g := graph.New()
	exec := &stubExecutor{}
	q := queue.New(context.Background(), g, exec, 2, 1, discardLogger())
	go drainResults(q)

	id, err := g.Add(model.Command{Executable: "x", DisplayName: "a"}, nil, false)
	require.NoError(t, err)
	require.NoError(t, g.ChangeState(id, graph.Enqueuing))

	g.Seal()

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not shut down")
	}

	require.Equal(t, graph.Successful, g.Node(id).State)
	require.Equal(t, int32(1), atomic.LoadInt32(&exec.cleanups))
}

func TestQueueReportsFailureFromOutput(t *testing.T) {
	g := graph.New()
	exec := &stubExecutor{dispatch: func(n *graph.Node) model.CommandOutput {
		return model.CommandOutput{ExitCode: 1}
	}}
	q := queue.New(context.Background(), g, exec, 2, 1, discardLogger())
	go drainResults(q)

	id, err := g.Add(model.Command{Executable: "x", DisplayName: "a"}, nil, false)
	require.NoError(t, err)
	require.NoError(t, g.ChangeState(id, graph.Enqueuing))
	g.Seal()

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not shut down")
	}

	require.Equal(t, graph.Failed, g.Node(id).State)
}

func TestQueueRespectsTotalCap(t *testing.T) {
	g := graph.New()
	release := make(chan struct{})
	exec := &stubExecutor{dispatch: func(n *graph.Node) model.CommandOutput {
		<-release
		return model.CommandOutput{ExitCode: 0}
	}}
	q := queue.New(context.Background(), g, exec, 1, 1, discardLogger())
	go drainResults(q)

	idA, _ := g.Add(model.Command{Executable: "x", DisplayName: "a"}, nil, false)
	idB, _ := g.Add(model.Command{Executable: "x", DisplayName: "b"}, nil, false)
	require.NoError(t, g.ChangeState(idA, graph.Enqueuing))
	require.NoError(t, g.ChangeState(idB, graph.Enqueuing))

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, graph.Processing, g.Node(idA).State)
	require.Equal(t, graph.Processing, g.Node(idB).State)
	require.Equal(t, int32(1), atomic.LoadInt32(&exec.dispatches))

	close(release)
	g.Seal()

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not shut down")
	}
}

func TestQueueResultsStreamDeliversOutput(t *testing.T) {
	g := graph.New()
	exec := &stubExecutor{}
	q := queue.New(context.Background(), g, exec, 2, 1, discardLogger())

	id, err := g.Add(model.Command{Executable: "x", DisplayName: "a"}, nil, false)
	require.NoError(t, err)
	require.NoError(t, g.ChangeState(id, graph.Enqueuing))

	select {
	case res := <-q.Results():
		require.Equal(t, id, res.Node.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}

	g.Seal()
	<-q.Done()
}
