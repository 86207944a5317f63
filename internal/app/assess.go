package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// Assess evaluates risk metrics for one ticker and optionally snapshots
// the result.
func (a *App) Assess(ctx context.Context, opts AssessOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot assess risk")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	assessment, err := svc.AssessTicker(ctx, opts.Ticker, opts.Benchmark, opts.LookbackDays, opts.Value)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Ticker\t%s\n", opts.Ticker)
	fmt.Fprintf(writer, "Volatility\t%.4f\n", assessment.Volatility)
	fmt.Fprintf(writer, "Max drawdown\t%.4f\n", assessment.MaxDrawdown)
	fmt.Fprintf(writer, "Beta\t%s\n", formatOptional(assessment.Beta))
	fmt.Fprintf(writer, "Sharpe\t%s\n", formatOptional(assessment.Sharpe))
	fmt.Fprintf(writer, "VaR\t%s\n", formatOptional(assessment.ValueAtRisk))
	fmt.Fprintf(writer, "Risk score\t%.1f\n", assessment.RiskScore)
	fmt.Fprintf(writer, "Risk level\t%s\n", assessment.RiskLevel)
	writer.Flush()

	if opts.SnapshotAs != "" {
		if err := svc.SnapshotRisk(ctx, opts.SnapshotAs, assessment); err != nil {
			return err
		}
		a.Logger.Info().Str("portfolio", opts.SnapshotAs).Msg("risk snapshot persisted")
	}

	return nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
