package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// Performance computes flow-adjusted returns for an account.
func (a *App) Performance(ctx context.Context, opts PerformanceOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot compute performance")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	result, err := svc.TruePerformance(ctx, opts.AccountID)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Account\t%s\n", opts.AccountID)
	fmt.Fprintf(writer, "Period\t%s → %s\n",
		result.PeriodStart.Format("2006-01-02"), result.PeriodEnd.Format("2006-01-02"))
	fmt.Fprintf(writer, "Time-weighted return\t%.2f%%\n", result.TimeWeighted*100)
	fmt.Fprintf(writer, "Money-weighted (IRR)\t%.2f%% annualized\n", result.MoneyWeighted*100)
	return writer.Flush()
}
