package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/suiterunner/harness/internal/enqueue"
	"github.com/suiterunner/harness/internal/harness"
	"github.com/suiterunner/harness/internal/reporting"
)

// Exit code constants.
const (
	exitSuccess = 0
	exitUsage   = 1
	exitRunErr  = 2
)

func main() {
	var (
		configFile   string
		suiteFiles   []string
		maxProcesses int
		maxBrowsers  int
		repeat       int
		batchMode    bool
		verbose      bool
	)

	rootCmd := &cobra.Command{
		Use:           "harness [suite-file...]",
		Short:         "Run test suites through the bounded command scheduler",
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			suiteFiles = args

			cfg := harness.DefaultConfig()
			if configFile != "" {
				loaded, err := harness.LoadConfig(configFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("max-processes") {
				cfg.MaxProcesses = maxProcesses
			}
			if cmd.Flags().Changed("max-browsers") {
				cfg.MaxBrowserProcesses = maxBrowsers
			}
			if cmd.Flags().Changed("repeat") {
				cfg.Repeat = repeat
			}
			if cmd.Flags().Changed("batch") {
				cfg.BatchMode = batchMode
			}

			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

			ctx, cancel := newCancellableContext()
			defer cancel()

			h, err := harness.New(ctx, cfg, harness.Externals{}, log)
			if err != nil {
				return fmt.Errorf("build harness: %w", err)
			}

			sources := make([]enqueue.SuiteSource, len(suiteFiles))
			for i, path := range suiteFiles {
				sources[i] = fileSuiteSource{path: path}
			}

			reporter := reporting.New(os.Stdout)
			return h.Run(ctx, sources, reporter)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().IntVar(&maxProcesses, "max-processes", 0, "Override max concurrent processes")
	rootCmd.PersistentFlags().IntVar(&maxBrowsers, "max-browsers", 0, "Override max concurrent browser processes")
	rootCmd.PersistentFlags().IntVar(&repeat, "repeat", 0, "Override repeat count per test case")
	rootCmd.PersistentFlags().BoolVar(&batchMode, "batch", true, "Enable batched compiler/VM workers")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "harness: %v\n", err)
		os.Exit(exitRunErr)
	}
	os.Exit(exitSuccess)
}

// newCancellableContext cancels on SIGINT/SIGTERM so Ctrl+C propagates
// through the whole run (spec.md §5's run loop selects on ctx.Done()).
func newCancellableContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
