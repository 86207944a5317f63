package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-analytics/internal/app"
)

var (
	exportTicker    string
	exportBenchmark string
	exportWindow    int
	exportLookback  int
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a rolling beta series as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportTicker == "" {
			return fmt.Errorf("--ticker is required")
		}

		opts := app.ExportOptions{
			Ticker:       exportTicker,
			Benchmark:    exportBenchmark,
			Window:       exportWindow,
			LookbackDays: exportLookback,
			PNGPath:      exportPNGPath,
			CSVPath:      exportCSVPath,
			MaxPoints:    exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTicker, "ticker", "", "Ticker to export")
	exportCmd.Flags().StringVar(&exportBenchmark, "benchmark", "", "Benchmark ticker (defaults to config)")
	exportCmd.Flags().IntVar(&exportWindow, "window", 90, "Rolling window in days (30, 60 or 90)")
	exportCmd.Flags().IntVar(&exportLookback, "lookback", 0, "History to regress over in days (defaults to 4x window)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
