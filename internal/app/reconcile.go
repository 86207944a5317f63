package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// Reconcile diffs consecutive holdings snapshots for an account and
// prints the transactions the engine inferred.
func (a *App) Reconcile(ctx context.Context, opts PerformanceOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot reconcile snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	txns, err := svc.ReconcileSnapshots(ctx, opts.AccountID)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		fmt.Printf("No transactions detected for account %s\n", opts.AccountID)
		return nil
	}

	fmt.Printf("Detected %d transaction(s) for account %s\n", len(txns), opts.AccountID)
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tKind\tTicker\tQuantity Δ\tValue Δ")
	for _, t := range txns {
		ticker := t.Ticker
		if ticker == "" {
			ticker = "(cash)"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			t.Date.Format("2006-01-02"), t.Kind, ticker,
			t.QuantityDelta.StringFixed(4), t.ValueDelta.StringFixed(2))
	}
	return writer.Flush()
}
