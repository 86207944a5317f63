package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-analytics/internal/app"
)

var (
	betaTicker    string
	betaBenchmark string
	betaWindow    int
	betaLookback  int
	betaForce     bool
)

var betaCmd = &cobra.Command{
	Use:   "beta",
	Short: "Compute rolling windowed beta against a benchmark",
	RunE: func(cmd *cobra.Command, args []string) error {
		if betaTicker == "" {
			return fmt.Errorf("--ticker is required")
		}

		opts := app.BetaOptions{
			Ticker:       betaTicker,
			Benchmark:    betaBenchmark,
			Window:       betaWindow,
			LookbackDays: betaLookback,
			Force:        betaForce,
		}

		return getApp().Beta(cmd.Context(), opts)
	},
}

func init() {
	betaCmd.Flags().StringVar(&betaTicker, "ticker", "", "Ticker to regress")
	betaCmd.Flags().StringVar(&betaBenchmark, "benchmark", "", "Benchmark ticker (defaults to config)")
	betaCmd.Flags().IntVar(&betaWindow, "window", 90, "Rolling window in days (30, 60 or 90)")
	betaCmd.Flags().IntVar(&betaLookback, "lookback", 0, "History to regress over in days (defaults to 4x window)")
	betaCmd.Flags().BoolVar(&betaForce, "force", false, "Recompute even if a fresh cached series exists")
}
