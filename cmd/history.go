package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uicheck/internal/observability"
	"github.com/xkilldash9x/uicheck/internal/store"
)

// failureSource is the part of the store the history command reads from.
type failureSource interface {
	RecentFailures(ctx context.Context, limit int) ([]store.FailingScenario, error)
}

// historyProvider opens the failure source; tests replace it.
type historyProvider func(ctx context.Context, url string, logger *zap.Logger) (failureSource, func(), error)

func openHistory(ctx context.Context, url string, logger *zap.Logger) (failureSource, func(), error) {
	s, closeFn, err := store.Open(ctx, url, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, closeFn, nil
}

func newHistoryCmd() *cobra.Command {
	return newHistoryCmdWith(openHistory)
}

func newHistoryCmdWith(open historyProvider) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Shows recent failed or errored scenarios from the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if cfg.Store.URL == "" {
				return errors.New("run history is not configured (set store.url or UICHECK_DATABASE_URL)")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1, got %d", limit)
			}

			src, closeFn, err := open(ctx, cfg.Store.URL, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer closeFn()

			failures, err := src.RecentFailures(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(failures) == 0 {
				fmt.Fprintln(out, "No failing scenarios recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tRUN\tSCENARIO\tOUTCOME\tERROR")
			for _, f := range failures {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					f.FinishedAt.Local().Format(time.DateTime), shortID(f.RunID), f.Scenario, f.Outcome, f.Error)
			}
			return w.Flush()
		},
	}

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of rows to show.")
	historyCmd.Flags().String("database-url", "", "PostgreSQL URL for run history. (Overrides config/env)")
	return historyCmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
