package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes the broad category of a Command so the executor
// can choose a dispatch strategy (spec.md §4.8).
type Kind int

const (
	// KindProcess is a plain one-shot child process.
	KindProcess Kind = iota
	// KindBatchCompile marks a compilation command eligible for a
	// batch runner (e.g. dart2js, analyzer, dartdevc, dartdevk, fasta).
	KindBatchCompile
	// KindKernelCompile marks a kernel-compile command, which is
	// always run via a batch runner regardless of configured batch mode.
	KindKernelCompile
	// KindVMBatch marks a VM command batched by display name + script file.
	KindVMBatch
	// KindScript marks a command executed in-process rather than as a
	// child (e.g. a small validation script).
	KindScript
	// KindBrowser marks a browser test launch, dispatched to the
	// external browser controller.
	KindBrowser
	// KindDevicePush marks a device-push step sequence, dispatched to
	// the external device pool.
	KindDevicePush
)

// RunnerType identifies which batch-runner pool a batch-eligible
// command belongs to (e.g. "dartdevc", "fasta", "vm").
type RunnerType string

// Command is an immutable, content-hashed description of a single
// external action. Two Commands with equal fields compare and hash
// identically so that test cases requesting the same compile collapse
// onto one graph node (spec.md §3).
type Command struct {
	Executable  string
	Args        []string
	Dir         string
	Env         map[string]string
	DisplayName string
	RetryBudget int
	Kind        Kind
	RunnerType  RunnerType

	// OutputFile, if non-empty, names a file this command produces;
	// the executor tees output to it and may skip re-running the
	// command if the file is already up to date (spec.md §4.6).
	OutputFile string

	// ScriptFile disambiguates VM-batch commands sharing a display
	// name (spec.md §4.8 rule 6: "keyed by display name + script file").
	ScriptFile string

	// Steps holds the shell step sequence for a KindDevicePush command,
	// run on an acquired device in order; the first non-zero step
	// aborts the sequence (spec.md §4.8 rule 5).
	Steps []string

	// Timeout is the per-run timeout the executor arms before starting
	// this command (spec.md §4.6: "equal to test.timeout seconds"). Set
	// by the Enqueuer from the owning TestCase's Timeout() — when a
	// command is shared by more than one test case (deduplicated onto
	// one graph node), the Enqueuer keeps the largest of the referring
	// test cases' timeouts. Excluded from Key() like RetryBudget: two
	// otherwise-identical commands requested with different timeouts
	// are still the same command.
	Timeout time.Duration
}

// Key returns a stable content hash identifying this Command. Two
// Commands with equal Key() are considered the same graph node.
func (c Command) Key() string {
	var b strings.Builder
	b.WriteString(c.Executable)
	b.WriteByte('\x00')
	for _, a := range c.Args {
		b.WriteString(a)
		b.WriteByte('\x00')
	}
	b.WriteString(c.Dir)
	b.WriteByte('\x00')
	b.WriteString(c.DisplayName)
	b.WriteByte('\x00')
	b.WriteString(string(c.RunnerType))
	b.WriteByte('\x00')
	b.WriteString(c.OutputFile)
	b.WriteByte('\x00')
	b.WriteString(c.ScriptFile)
	b.WriteByte('\x00')
	for _, s := range c.Steps {
		b.WriteString(s)
		b.WriteByte('\x00')
	}

	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.Env[k])
		b.WriteByte('\x00')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two commands hash to the same content key.
func (c Command) Equal(other Command) bool {
	return c.Key() == other.Key()
}

// IsBatchEligible reports whether this command may run on a batch
// runner worker instead of as a fresh one-shot process.
func (c Command) IsBatchEligible() bool {
	switch c.Kind {
	case KindBatchCompile, KindKernelCompile, KindVMBatch:
		return true
	default:
		return false
	}
}

// IndexedCopy derives a distinct command for repeat-copy i (i >= 1),
// so that its graph node is distinct from copy 0's. The display name
// and environment are rewritten with the index so Key() differs while
// all other fields (and therefore test metadata/expectations carried
// alongside the owning TestCase) are preserved.
func (c Command) IndexedCopy(i int) Command {
	Precondition(i >= 0, "repeat index must be non-negative, got %d", i)

	cp := c
	cp.Args = append([]string(nil), c.Args...)

	env := make(map[string]string, len(c.Env)+1)
	for k, v := range c.Env {
		env[k] = v
	}
	if i > 0 {
		cp.DisplayName = c.DisplayName + " (repeat " + strconv.Itoa(i) + ")"
		env["SUITERUNNER_REPEAT_INDEX"] = strconv.Itoa(i)
	}
	cp.Env = env
	return cp
}
