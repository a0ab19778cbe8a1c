package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	reportConsolidated bool
	reportDays         int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the daily cost report, or a consolidated multi-account summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.shutdown(ctx)

		days := reportDays
		if days <= 0 {
			days = a.settings.LookbackDays
		}

		if reportConsolidated {
			summary, err := a.aggregator().ConsolidatedSummary(ctx, days)
			if err != nil {
				return err
			}
			return printJSON(summary)
		}

		analyzer, err := a.analyzer(ctx)
		if err != nil {
			return err
		}
		report := analyzer.DailyReport(ctx)
		if err := printJSON(report); err != nil {
			return err
		}
		if len(report.Failures) > 0 {
			fmt.Fprintf(os.Stderr, "warning: %d report section(s) failed: %v\n",
				len(report.Failures), report.Failures)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportConsolidated, "consolidated", false, "Aggregate costs across all organization accounts")
	reportCmd.Flags().IntVar(&reportDays, "days", 0, "Lookback window in days for the consolidated summary (default from lookback_days)")
	rootCmd.AddCommand(reportCmd)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
