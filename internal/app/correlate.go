package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// Correlate computes the pairwise correlation matrix for a ticker universe.
func (a *App) Correlate(ctx context.Context, opts CorrelateOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot compute correlations")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	matrix, err := svc.CorrelationMatrix(ctx, opts.Tickers, opts.LookbackDays)
	if err != nil {
		return err
	}

	fmt.Printf("Correlation matrix over %d shared observation(s)\n", matrix.Observations)
	if len(matrix.Excluded) > 0 {
		fmt.Printf("Excluded (insufficient overlap): %v\n", matrix.Excluded)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprint(writer, "\t")
	for _, t := range matrix.Tickers {
		fmt.Fprintf(writer, "%s\t", t)
	}
	fmt.Fprintln(writer)
	for i, row := range matrix.Values {
		fmt.Fprintf(writer, "%s\t", matrix.Tickers[i])
		for _, v := range row {
			fmt.Fprintf(writer, "%.3f\t", v)
		}
		fmt.Fprintln(writer)
	}
	return writer.Flush()
}
