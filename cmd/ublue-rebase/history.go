package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ULilBagel/ublue-rebase-tool/internal/history"
	"github.com/ULilBagel/ublue-rebase-tool/internal/ui"
)

var (
	historyLimit  int
	historyType   string
	historyFollow bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded rebase and rollback operations",
	Long: `Lists past operations newest first. The ledger keeps the most recent
fifty entries in a user-private file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return err
		}

		printEntries := func() error {
			var entries []history.Entry
			var err error
			switch historyType {
			case "":
				entries, err = ledger.Recent(historyLimit)
			case "rebase", "rollback":
				entries, err = ledger.ByType(history.OperationType(historyType))
			default:
				return fmt.Errorf("unknown operation type %q (want rebase or rollback)", historyType)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println(ui.RenderMuted("No operations recorded."))
				return nil
			}
			for _, e := range entries {
				icon := ui.RenderSuccess(ui.IconOK)
				if !e.Success {
					icon = ui.RenderFail(ui.IconFail)
				}
				fmt.Printf("%s %s  %s  %s\n", icon,
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					string(e.OperationType), e.ImageName)
				if e.ErrorMessage != "" {
					fmt.Println(ui.RenderMuted("    " + e.ErrorMessage))
				}
			}
			return nil
		}

		if err := printEntries(); err != nil {
			return err
		}
		if !historyFollow {
			return nil
		}
		// Re-render on every ledger change until interrupted.
		return followHistory(rootCtx, ledger, func() {
			fmt.Println()
			if err := printEntries(); err != nil {
				logger.Warn("refreshing history failed", "error", err)
			}
		})
	},
}

// followHistory watches the ledger until the context is cancelled.
// Interruption is how a follow normally ends, not an error.
func followHistory(ctx context.Context, ledger *history.Ledger, render func()) error {
	err := ledger.Watch(ctx, render)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return err
		}
		if err := ledger.Clear(); err != nil {
			return err
		}
		fmt.Println(ui.RenderSuccess(ui.IconOK + " History cleared."))
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export the history ledger to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return err
		}
		if err := ledger.Export(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Exported to %s\n", ui.RenderSuccess(ui.IconOK), args[0])
		return nil
	},
}

var historyReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize recorded operations",
	Long:  `Aggregates the ledger into per-operation and per-user counts with recent failures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return err
		}
		report, err := ledger.AuditReport()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(report)
		}

		fmt.Println(ui.RenderHeading("Operation report"))
		fmt.Printf("  %s %d (%s succeeded)\n", ui.RenderMuted("Total:"), report.Summary.Total, report.SuccessRate)
		for op, c := range report.ByOperation {
			fmt.Printf("  %s %d ok, %d failed\n", ui.RenderMuted(op+":"), c.Success, c.Failed)
		}
		if len(report.RecentFailures) > 0 {
			fmt.Println(ui.RenderHeading("Recent failures"))
			for _, f := range report.RecentFailures {
				fmt.Printf("  %s %s  %s\n", ui.RenderFail(ui.IconFail), f.Timestamp, f.Error)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum entries to show (0 for all)")
	historyCmd.Flags().StringVar(&historyType, "type", "", "Filter by operation type (rebase|rollback)")
	historyCmd.Flags().BoolVarP(&historyFollow, "follow", "f", false, "Keep watching the ledger for changes")
	historyCmd.AddCommand(historyClearCmd, historyExportCmd, historyReportCmd)
	rootCmd.AddCommand(historyCmd)
}
