package exec_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suiterunner/harness/internal/exec"
	"github.com/suiterunner/harness/internal/graph"
	"github.com/suiterunner/harness/internal/model"
	"github.com/suiterunner/harness/internal/runner"
)

// oomOnceThenPassWorker crashes with the OOM marker in its per-job
// stderr section on its first job and passes on every job after, so the
// test can observe the executor retrying a kernel-compile crash exactly
// once.
const oomOnceThenPassWorker = `#!/bin/sh
while IFS= read -r line; do
  count=$(cat "$COUNTER_FILE" 2>/dev/null || echo 0)
  count=$((count + 1))
  echo "$count" > "$COUNTER_FILE"
  if [ "$count" -eq 1 ]; then
    echo ">>> EOF STDERR"
    echo "Exhausted heap space, trying to allocate more"
    echo ">>> TEST CRASH"
  else
    echo "recovered"
    echo ">>> TEST PASS"
  fi
done
`

func writeOOMWorker(t *testing.T) (script, counter string) {
	t.Helper()
	dir := t.TempDir()
	counter = filepath.Join(dir, "count")
	script = filepath.Join(dir, "worker.sh")
	require.NoError(t, os.WriteFile(script, []byte(oomOnceThenPassWorker), 0o755))
	return script, counter
}

func TestDispatchRetriesKernelCompileOnOOMThenSucceeds(t *testing.T) {
	script, counter := writeOOMWorker(t)
	pool := runner.NewBatchRunnerPool(script, 1, nil)
	e := &exec.Executor{Batch: pool}

	cmd := model.Command{
		Kind:        model.KindKernelCompile,
		DisplayName: "kernel_compile",
		RunnerType:  model.RunnerType("vm"),
		RetryBudget: 1,
		Timeout:     5 * time.Second,
		Env:         map[string]string{"COUNTER_FILE": counter},
	}
	n := &graph.Node{Command: cmd}

	out, err := e.Dispatch(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, 0, out.ExitCode)
}

func TestDispatchDoesNotRetryNonTransientFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "always-fail.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nwhile IFS= read -r line; do\n  echo \"some unrelated failure\"\n  echo \">>> TEST FAIL\"\ndone\n"), 0o755))

	pool := runner.NewBatchRunnerPool(script, 1, nil)
	e := &exec.Executor{Batch: pool}

	cmd := model.Command{
		Kind:        model.KindVMBatch,
		DisplayName: "vm_test",
		ScriptFile:  "foo_test.dart",
		RunnerType:  model.RunnerType("vm"),
		RetryBudget: 2,
		Timeout:     5 * time.Second,
	}
	n := &graph.Node{Command: cmd}

	out, err := e.Dispatch(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, 1, out.ExitCode)
}
