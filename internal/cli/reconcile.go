package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-analytics/internal/app"
)

var reconcileAccount string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Infer transactions from consecutive holdings snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reconcileAccount == "" {
			return fmt.Errorf("--account is required")
		}

		opts := app.PerformanceOptions{
			AccountID: reconcileAccount,
		}

		return getApp().Reconcile(cmd.Context(), opts)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileAccount, "account", "", "Account id to reconcile")
}
