package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-analytics/internal/app"
)

var (
	assessTicker     string
	assessBenchmark  string
	assessLookback   int
	assessValue      float64
	assessSnapshotAs string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess risk metrics for a ticker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if assessTicker == "" {
			return fmt.Errorf("--ticker is required")
		}
		if assessLookback <= 0 {
			return fmt.Errorf("--lookback must be greater than zero")
		}

		opts := app.AssessOptions{
			Ticker:       assessTicker,
			Benchmark:    assessBenchmark,
			LookbackDays: assessLookback,
			Value:        assessValue,
			SnapshotAs:   assessSnapshotAs,
		}

		return getApp().Assess(cmd.Context(), opts)
	},
}

func init() {
	assessCmd.Flags().StringVar(&assessTicker, "ticker", "", "Ticker to assess")
	assessCmd.Flags().StringVar(&assessBenchmark, "benchmark", "", "Benchmark ticker for beta (optional)")
	assessCmd.Flags().IntVar(&assessLookback, "lookback", 252, "Lookback window in calendar days")
	assessCmd.Flags().Float64Var(&assessValue, "value", 0, "Position value for VaR scaling (optional)")
	assessCmd.Flags().StringVar(&assessSnapshotAs, "snapshot-as", "", "Persist the assessment under this portfolio id")
}
