package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-analytics/internal/app"
)

var (
	correlateTickers  []string
	correlateLookback int
)

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Compute the pairwise correlation matrix for a ticker set",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(correlateTickers) < 2 {
			return fmt.Errorf("--tickers requires at least two tickers")
		}

		opts := app.CorrelateOptions{
			Tickers:      correlateTickers,
			LookbackDays: correlateLookback,
		}

		return getApp().Correlate(cmd.Context(), opts)
	},
}

func init() {
	correlateCmd.Flags().StringSliceVar(&correlateTickers, "tickers", nil, "Tickers to correlate (comma separated)")
	correlateCmd.Flags().IntVar(&correlateLookback, "lookback", 0, "Lookback window in days (defaults to config)")
}
