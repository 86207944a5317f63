package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// Beta computes the rolling windowed beta of a ticker against its
// benchmark and prints the series.
func (a *App) Beta(ctx context.Context, opts BetaOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot compute rolling beta")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	result, err := svc.RollingBeta(ctx, opts.Ticker, opts.Benchmark, opts.Window, opts.LookbackDays, opts.Force)
	if err != nil {
		return err
	}

	fmt.Printf("Rolling beta %s vs %s (window %dd, %d points)\n", result.Ticker, result.Benchmark, result.Window, len(result.Points))
	if result.Cache.IsStale {
		fmt.Printf("Cache: stale (computed %s), refresh recommended\n", result.Cache.LastUpdated.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Printf("Cache: fresh (computed %s)\n", result.Cache.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tBeta\tR²")
	for _, p := range result.Points {
		fmt.Fprintf(writer, "%s\t%.4f\t%.4f\n", p.Date.Format("2006-01-02"), p.Beta, p.RSquared)
	}
	return writer.Flush()
}
