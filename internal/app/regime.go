package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"portfolio-analytics/internal/analytics"
)

// Regime detects (or re-reads) the market regime for a date and prints
// it together with multi-horizon forecasts.
func (a *App) Regime(ctx context.Context, opts RegimeOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot detect market regime")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	record, err := svc.Regime(ctx, opts.Date)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Date\t%s\n", record.RegimeDate.Format("2006-01-02"))
	fmt.Fprintf(writer, "Regime\t%s\n", record.RegimeType)
	fmt.Fprintf(writer, "Confidence\t%.1f%%\n", record.Confidence)
	fmt.Fprintf(writer, "Volatility\t%.4f\n", record.VolatilityLevel)
	fmt.Fprintf(writer, "Market return\t%.4f\n", record.MarketReturn)
	fmt.Fprintf(writer, "Threshold multiplier\t%.2f\n", record.ThresholdMultiplier)
	writer.Flush()

	forecasts := svc.ForecastRegime(opts.Horizons)
	if len(forecasts) == 0 {
		return nil
	}

	fmt.Println()
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Horizon\tPredicted\tConfidence\tP(switch)")
	for _, f := range forecasts {
		fmt.Fprintf(writer, "%dd\t%s\t%.1f%%\t%.1f%%\n",
			f.HorizonDays, f.PredictedRegime, f.Confidence, f.TransitionProbability*100)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	for _, f := range forecasts {
		fmt.Printf("\n%dd state distribution:\n", f.HorizonDays)
		for _, rt := range analytics.RegimeTypes {
			fmt.Printf("  %-16s %.1f%%\n", rt, f.StateProbabilities[rt]*100)
		}
	}
	return nil
}
