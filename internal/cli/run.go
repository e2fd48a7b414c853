package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	libhttp "github.com/wesleyorama2/libload/internal/http"
	"github.com/wesleyorama2/libload/internal/library"
	"github.com/wesleyorama2/libload/internal/performance/config"
	"github.com/wesleyorama2/libload/internal/performance/engine"
	"github.com/wesleyorama2/libload/internal/performance/metrics"
	"github.com/wesleyorama2/libload/internal/performance/output"
)

// ErrRunFailed is returned when a run completes but was aborted or broke a
// threshold.
var ErrRunFailed = errors.New("load test failed")

// runOptions are the output settings of the run command.
type runOptions struct {
	jsonOutput bool
	outputPath string
	quiet      bool
	noColor    bool
	progress   time.Duration
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against the library service",
		Long: `Seed authors and books, run every scenario of the profile concurrently
and print the report. The exit status is non-zero when the run is aborted
or a threshold fails.

  libload run
  BASE_URL=http://library:8080 libload run
  libload run --config profile.yaml --output report.json

Interrupting the run (Ctrl-C) stops new iterations; in-flight ones get the
scenario's gracefulStop to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadTestConfig(cmd)
			if err != nil {
				return err
			}

			verbose, _ := cmd.Flags().GetBool("verbose")
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var opts runOptions
			opts.jsonOutput, _ = cmd.Flags().GetBool("json")
			opts.outputPath, _ = cmd.Flags().GetString("output")
			opts.quiet, _ = cmd.Flags().GetBool("quiet")
			opts.noColor, _ = cmd.Flags().GetBool("no-color")
			opts.progress, _ = cmd.Flags().GetDuration("progress")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runTest(ctx, cfg, logger, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	addProfileFlags(cmd)
	cmd.Flags().Bool("json", false, "Write the report as JSON to stdout")
	cmd.Flags().StringP("output", "o", "", "Write the JSON report to this file")
	cmd.Flags().BoolP("quiet", "q", false, "Print only PASSED or FAILED")
	cmd.Flags().Bool("no-color", false, "Disable colors")
	cmd.Flags().Duration("progress", 5*time.Second, "Interval of progress lines on stderr (0 disables)")
	return cmd
}

// runTest runs cfg to completion and renders the report. Human-readable
// output goes to stdout unless the JSON report does, in which case it moves
// to stderr.
func runTest(ctx context.Context, cfg *config.TestConfig, logger *zap.Logger, opts runOptions, stdout, stderr io.Writer) error {
	engineOpts, err := library.EngineOptions(cfg, logger)
	if err != nil {
		return err
	}

	client := libhttp.NewClient(cfg.Settings.ClientOptions()...)
	defer client.CloseIdleConnections()

	eng, err := engine.New(engineOpts, client)
	if err != nil {
		return err
	}

	consoleOut := stdout
	if opts.jsonOutput && opts.outputPath == "" {
		consoleOut = stderr
	}
	console := output.NewConsole(output.ConsoleConfig{Writer: consoleOut, NoColor: opts.noColor, Quiet: opts.quiet})

	name := displayName(cfg)
	console.PrintHeader(name, cfg.ScenarioNames())

	done := make(chan struct{})
	var wg sync.WaitGroup
	if opts.progress > 0 && !opts.quiet {
		progress := output.NewConsole(output.ConsoleConfig{Writer: stderr, NoColor: opts.noColor})
		wg.Add(1)
		go func() {
			defer wg.Done()
			reportProgress(eng.Collector(), progress, opts.progress, done)
		}()
	}

	report, runErr := eng.Run(ctx)
	close(done)
	wg.Wait()

	if report == nil {
		return runErr
	}
	if runErr != nil {
		logger.Error("scenario failed", zap.Error(runErr))
	}

	switch {
	case opts.outputPath != "":
		if err := output.WriteJSONFile(opts.outputPath, name, report); err != nil {
			return err
		}
	case opts.jsonOutput:
		if err := output.WriteJSON(stdout, name, report); err != nil {
			return err
		}
	}
	console.PrintReport(name, report)

	if runErr != nil {
		return runErr
	}
	if !report.Passed {
		return ErrRunFailed
	}
	return nil
}

func reportProgress(collector *metrics.Collector, console *output.Console, every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			console.PrintProgress(collector.Snapshot())
		case <-done:
			return
		}
	}
}
