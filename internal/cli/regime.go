package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"portfolio-analytics/internal/app"
)

var (
	regimeDate     string
	regimeHorizons []int
)

var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "Detect the market regime and forecast transitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.RegimeOptions{
			Horizons: regimeHorizons,
		}

		if regimeDate != "" {
			date, err := time.Parse("2006-01-02", regimeDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Date = &date
		}

		return getApp().Regime(cmd.Context(), opts)
	},
}

func init() {
	regimeCmd.Flags().StringVar(&regimeDate, "date", "", "Regime date (YYYY-MM-DD, defaults to today)")
	regimeCmd.Flags().IntSliceVar(&regimeHorizons, "horizons", nil, "Forecast horizons in days (defaults to 5,10,30)")
}
