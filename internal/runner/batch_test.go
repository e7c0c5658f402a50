package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suiterunner/harness/internal/model"
	"github.com/suiterunner/harness/internal/runner"
)

const fakeBatchWorkerScript = `#!/bin/sh
while IFS= read -r line; do
  echo "out for $line"
  echo ">>> EOF STDERR"
  echo "err for $line"
  echo ">>> TEST PASS"
done
`

func writeFakeBatchWorker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(fakeBatchWorkerScript), 0o755))
	return path
}

func TestBatchRunnerPoolRunsJobAndReportsPass(t *testing.T) {
	pool := runner.NewBatchRunnerPool(writeFakeBatchWorker(t), 2, discardLogger())

	out, err := pool.Run(context.Background(), model.RunnerType("dartdevc"), runner.EnvHash(nil), []string{"a.dart"}, nil, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, out.ExitCode)
	require.Contains(t, string(out.Stdout), "out for a.dart")
	require.Contains(t, string(out.Stderr), "err for a.dart")
}

func TestBatchRunnerPoolReusesWorkerAcrossJobs(t *testing.T) {
	pool := runner.NewBatchRunnerPool(writeFakeBatchWorker(t), 1, discardLogger())

	_, err := pool.Run(context.Background(), model.RunnerType("dartdevc"), runner.EnvHash(nil), []string{"a.dart"}, nil, 5*time.Second)
	require.NoError(t, err)

	_, err = pool.Run(context.Background(), model.RunnerType("dartdevc"), runner.EnvHash(nil), []string{"b.dart"}, nil, 5*time.Second)
	require.NoError(t, err)
}

const slowFakeBatchWorkerScript = `#!/bin/sh
while IFS= read -r line; do
  sleep 2
  echo ">>> TEST PASS"
done
`

func writeSlowFakeBatchWorker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slow-fake-worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(slowFakeBatchWorkerScript), 0o755))
	return path
}

func TestBatchRunnerPoolPanicsWhenNoneIdle(t *testing.T) {
	pool := runner.NewBatchRunnerPool(writeSlowFakeBatchWorker(t), 1, discardLogger())

	go func() {
		_, _ = pool.Run(context.Background(), model.RunnerType("dartdevc"), runner.EnvHash(nil), []string{"slow"}, nil, 5*time.Second)
	}()
	time.Sleep(200 * time.Millisecond)

	require.Panics(t, func() {
		_, _ = pool.Run(context.Background(), model.RunnerType("dartdevc"), runner.EnvHash(nil), []string{"also-slow"}, nil, 5*time.Second)
	})
}
