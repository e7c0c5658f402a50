package harness

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the harness run's tunable policy, decoded from a YAML file
// (spec.md §5/§6 parameters: process caps, base timeout, batch mode).
type Config struct {
	// MaxProcesses bounds total in-flight child processes.
	MaxProcesses int `yaml:"max_processes"`
	// MaxBrowserProcesses additionally bounds in-flight browser commands.
	MaxBrowserProcesses int `yaml:"max_browser_processes"`

	// BaseTimeout is the per-command timeout before any Slow/ExtraSlow
	// multiplier (spec.md §3's test.timeout).
	BaseTimeout time.Duration `yaml:"base_timeout"`
	// MaxStdioDelay bounds the post-exit stdio drain grace window
	// (spec.md §4.6 MAX_STDIO_DELAY).
	MaxStdioDelay time.Duration `yaml:"max_stdio_delay"`
	// WatchdogInactivity is how long the run loop may go without a
	// finished command before dumping diagnostics (spec.md §5).
	WatchdogInactivity time.Duration `yaml:"watchdog_inactivity"`

	// Repeat is how many times each test case is expanded (spec.md §4.3).
	Repeat int `yaml:"repeat"`

	// BatchMode gates dispatch rule 3: configured-batch compilers run
	// batched only when this is true (spec.md §4.8).
	BatchMode bool `yaml:"batch_mode"`
	// BatchExecutable is the `--batch` worker binary path.
	BatchExecutable string `yaml:"batch_executable"`
	// MaxBatchWorkersPerType bounds concurrently-alive workers per
	// (runner type, pool key) (spec.md §4.7).
	MaxBatchWorkersPerType int `yaml:"max_batch_workers_per_type"`
}

// DefaultConfig returns a Config with conservative, documented
// defaults, matching the fallback constants named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		MaxProcesses:           4,
		MaxBrowserProcesses:    1,
		BaseTimeout:            60 * time.Second,
		MaxStdioDelay:          2 * time.Second,
		WatchdogInactivity:     10 * time.Minute,
		Repeat:                 1,
		BatchMode:              true,
		BatchExecutable:        "dart",
		MaxBatchWorkersPerType: 4,
	}
}

// LoadConfig reads and decodes a YAML config file on top of
// DefaultConfig, so an omitted field keeps its default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces the config invariants the rest of the harness
// assumes hold (spec.md §4.5's Precondition on the two process caps).
func (c Config) Validate() error {
	if c.MaxProcesses <= 0 {
		return fmt.Errorf("max_processes must be positive, got %d", c.MaxProcesses)
	}
	if c.MaxBrowserProcesses < 0 {
		return fmt.Errorf("max_browser_processes must be non-negative, got %d", c.MaxBrowserProcesses)
	}
	if c.Repeat < 1 {
		return fmt.Errorf("repeat must be >= 1, got %d", c.Repeat)
	}
	return nil
}
