package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	anomaliesManaged bool
	anomaliesDays    int
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Detect cost anomalies statistically, or list Cost Anomaly Detection findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.shutdown(ctx)

		analyzer, err := a.analyzer(ctx)
		if err != nil {
			return err
		}

		days := anomaliesDays
		if days <= 0 {
			days = a.settings.LookbackDays
		}

		if anomaliesManaged {
			anomalies, err := analyzer.ManagedAnomalies(ctx, days)
			if err != nil {
				return err
			}
			return printJSON(anomalies)
		}

		flagged, err := analyzer.DetectCostAnomalies(ctx)
		if err != nil {
			return err
		}
		if len(flagged) == 0 {
			fmt.Println("no anomalies detected")
			return nil
		}
		return printJSON(flagged)
	},
}

func init() {
	anomaliesCmd.Flags().BoolVar(&anomaliesManaged, "managed", false, "Query AWS Cost Anomaly Detection instead of the statistical detector")
	anomaliesCmd.Flags().IntVar(&anomaliesDays, "days", 0, "Lookback window in days for managed anomalies (default from lookback_days)")
	rootCmd.AddCommand(anomaliesCmd)
}
