package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// Show prints recent market regime records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show regimes")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	records, err := svc.ListRecentRegimes(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no regimes recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tRegime\tVolatility\tReturn\tConfidence\tMultiplier\tBenchmark")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%.4f\t%.4f\t%.1f%%\t%.2f\t%s\n",
			rec.RegimeDate.Format("2006-01-02"),
			rec.RegimeType,
			rec.VolatilityLevel,
			rec.MarketReturn,
			rec.Confidence,
			rec.ThresholdMultiplier,
			rec.BenchmarkTicker,
		)
	}

	writer.Flush()
	return nil
}
