package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/config"
	"github.com/xkilldash9x/uicheck/internal/evidence"
	"github.com/xkilldash9x/uicheck/internal/harness"
	"github.com/xkilldash9x/uicheck/internal/observability"
	"github.com/xkilldash9x/uicheck/internal/reporting"
	"github.com/xkilldash9x/uicheck/internal/scenarios"
	"github.com/xkilldash9x/uicheck/internal/store"
)

// SuiteFailedError is returned by the run command when the suite completed
// but at least one scenario did not pass.
type SuiteFailedError struct {
	Summary reporting.Summary
}

func (e *SuiteFailedError) Error() string {
	return fmt.Sprintf("%d of %d scenarios did not pass (%d failed, %d errored)",
		e.Summary.Failed+e.Summary.Errored, e.Summary.Total, e.Summary.Failed, e.Summary.Errored)
}

// runDeps are the seams the run command is assembled from.
type runDeps struct {
	newManager func(cfg *config.Config, logger *zap.Logger) harness.ManagerFactory
	openStore  func(ctx context.Context, url string, logger *zap.Logger) (harness.Sink, func(), error)
}

func defaultRunDeps() runDeps {
	return runDeps{
		newManager: func(cfg *config.Config, logger *zap.Logger) harness.ManagerFactory {
			return func(worker int) harness.SessionManager {
				return harness.FromBrowser(browser.NewManager(cfg, logger.With(zap.Int("worker", worker))))
			}
		},
		openStore: func(ctx context.Context, url string, logger *zap.Logger) (harness.Sink, func(), error) {
			s, closeFn, err := store.Open(ctx, url, logger)
			if err != nil {
				return nil, nil, err
			}
			if err := s.EnsureSchema(ctx); err != nil {
				closeFn()
				return nil, nil, err
			}
			return s, closeFn, nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return newRunCmdWith(defaultRunDeps())
}

func newRunCmdWith(deps runDeps) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the smoke suite and writes the report",
		Long: `Runs every selected scenario against the configured storefront, captures a
screenshot per scenario and writes the report. The exit status is zero only
when every scenario passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			return runSuite(ctx, cfg, deps, observability.GetLogger(), cmd.OutOrStdout())
		},
	}

	runCmd.Flags().String("base-url", "", "Storefront base URL. (Overrides config/env)")
	runCmd.Flags().IntP("workers", "j", 0, "Number of parallel browser sessions. (Overrides config/env)")
	runCmd.Flags().Duration("timeout", 0, "Default wait timeout per step. (Overrides config/env)")
	runCmd.Flags().StringSliceP("scenario", "s", nil, "Run only the named scenarios (repeatable).")
	runCmd.Flags().String("scenario-file", "", "YAML suite file to run instead of the built-in scenarios.")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	runCmd.Flags().String("evidence-dir", "", "Directory for screenshots. (Overrides config/env)")
	runCmd.Flags().StringP("report", "o", "", "Report output path. (Overrides config/env)")
	runCmd.Flags().StringSliceP("format", "f", nil, "Report formats: html, json, junit, sarif. (Overrides config/env)")
	runCmd.Flags().String("database-url", "", "PostgreSQL URL for run history. Empty disables persistence.")

	return runCmd
}

// loadScenarios resolves the scenario list from the suite file or the
// built-in catalog and applies the name filter.
func loadScenarios(suite config.SuiteConfig) ([]harness.Scenario, error) {
	catalog := scenarios.Storefront()
	if suite.ScenarioFile != "" {
		loaded, err := scenarios.LoadFile(suite.ScenarioFile)
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}
	return scenarios.Select(catalog, suite.Scenarios)
}

func runSuite(ctx context.Context, cfg *config.Config, deps runDeps, logger *zap.Logger, out io.Writer) error {
	list, err := loadScenarios(cfg.Suite)
	if err != nil {
		return err
	}

	ev, err := evidence.NewCollector(cfg.Evidence, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize evidence collector: %w", err)
	}
	collector := reporting.NewCollector(cfg.Report, cfg.Suite.BaseURL, Version, logger)

	var sink harness.Sink
	if cfg.Store.URL != "" {
		s, closeFn, err := deps.openStore(ctx, cfg.Store.URL, logger)
		if err != nil {
			// History is optional; the suite still runs and reports.
			logger.Warn("Run history disabled, database unavailable.", zap.Error(err))
		} else {
			defer closeFn()
			sink = s
		}
	}

	logger.Debug("Suite assembled.", zap.String("run_id", collector.RunID()), zap.Bool("history", sink != nil))

	runner := harness.NewRunner(cfg.Suite, deps.newManager(cfg, logger), ev, collector, sink, logger)
	report, runErr := runner.Run(ctx, list)
	if report != nil {
		printSummary(out, report, collector.Written())
	}
	if runErr != nil {
		return runErr
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("suite interrupted: %w", err)
	}
	if !report.Passed() {
		return &SuiteFailedError{Summary: report.Summary()}
	}
	return nil
}

func printSummary(out io.Writer, report *reporting.Report, written []string) {
	s := report.Summary()
	fmt.Fprintf(out, "\nRun %s against %s\n", report.RunID, report.BaseURL)
	for _, e := range report.Entries {
		line := fmt.Sprintf("  %-8s %-28s %s", e.Outcome, e.Scenario, e.Duration.Round(time.Millisecond))
		if e.Error != "" {
			line += "  " + e.Error
		}
		fmt.Fprintln(out, line)
		if step, ok := e.Failing(); ok {
			fmt.Fprintf(out, "           failing step %d: %s\n", step.Index, step.Description)
		}
		if e.Evidence != nil {
			fmt.Fprintf(out, "           screenshot: %s\n", e.Evidence.Path)
		}
	}
	if report.SuiteError != "" {
		fmt.Fprintf(out, "Suite error: %s\n", report.SuiteError)
	}
	fmt.Fprintf(out, "%d passed, %d failed, %d errored in %s\n",
		s.Passed, s.Failed, s.Errored, report.Duration().Round(time.Millisecond))
	for _, path := range written {
		fmt.Fprintf(out, "Report: %s\n", path)
	}
}

// ExitCode maps the outcome of Execute onto a process status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
