package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-analytics/internal/app"
)

var performanceAccount string

var performanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Compute flow-adjusted returns for an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if performanceAccount == "" {
			return fmt.Errorf("--account is required")
		}

		opts := app.PerformanceOptions{
			AccountID: performanceAccount,
		}

		return getApp().Performance(cmd.Context(), opts)
	},
}

func init() {
	performanceCmd.Flags().StringVar(&performanceAccount, "account", "", "Account id to evaluate")
}
