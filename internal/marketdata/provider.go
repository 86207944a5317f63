package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/storage"
)

// Provider supplies derived return series per ticker. Retrieval and refresh
// of the underlying closes is owned by the import pipeline, not the engine.
type Provider interface {
	ReturnSeries(ctx context.Context, ticker string, from, to time.Time) (analytics.ReturnSeries, error)
}

// StoreProvider derives return series from the price_history table.
type StoreProvider struct {
	prices storage.PriceStore
	logger zerolog.Logger
}

// NewStoreProvider wires a price store into a Provider.
func NewStoreProvider(prices storage.PriceStore, logger zerolog.Logger) *StoreProvider {
	return &StoreProvider{
		prices: prices,
		logger: logger.With().Str("component", "price_provider").Logger(),
	}
}

// ReturnSeries loads closes for [from, to) and converts them to simple
// returns. A ticker with no rows at all reports ErrNotFound; query failures
// surface as ProviderFailureError.
func (p *StoreProvider) ReturnSeries(ctx context.Context, ticker string, from, to time.Time) (analytics.ReturnSeries, error) {
	rows, err := p.prices.ListPricesBetween(ctx, ticker, from, to)
	if err != nil {
		return analytics.ReturnSeries{}, &analytics.ProviderFailureError{Ticker: ticker, Err: err}
	}
	if len(rows) == 0 {
		return analytics.ReturnSeries{}, fmt.Errorf("%w: %s", analytics.ErrNotFound, ticker)
	}

	prices := make([]analytics.PricePoint, len(rows))
	for i, row := range rows {
		prices[i] = analytics.PricePoint{Date: row.PriceDate, Close: row.Close}
	}

	series := analytics.ReturnsFromPrices(ticker, prices)
	p.logger.Debug().
		Str("ticker", ticker).
		Int("closes", len(rows)).
		Int("returns", series.Len()).
		Msg("derived return series")

	return series, nil
}

var _ Provider = (*StoreProvider)(nil)
