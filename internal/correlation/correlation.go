package correlation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/marketdata"
)

// Engine computes pairwise Pearson correlation matrices. The computation is
// O(n²·w) and deliberately long-running: it carries its own extended
// timeout instead of being treated as a fast synchronous call.
type Engine struct {
	provider marketdata.Provider
	cfg      config.CorrelationConfig
	logger   zerolog.Logger
}

// NewEngine wires a correlation engine.
func NewEngine(provider marketdata.Provider, cfg config.CorrelationConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "correlation").Logger(),
	}
}

// Matrix computes the full symmetric correlation matrix over the
// date-intersected return series of the requested tickers. Tickers without
// history, or without enough overlap with the shared trading days, are
// excluded from the matrix and reported. Inclusion is greedy in request
// order: an earlier ticker with sparse history narrows the shared date set
// and can evict later tickers, so the same universe listed in a different
// order may exclude different members.
func (e *Engine) Matrix(ctx context.Context, tickers []string, lookbackDays int) (analytics.CorrelationMatrix, error) {
	if len(tickers) < 2 {
		return analytics.CorrelationMatrix{}, &analytics.InvalidInputError{Field: "tickers", Reason: "at least two tickers required"}
	}
	if lookbackDays <= 0 {
		lookbackDays = e.cfg.LookbackDays
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	to := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	from := to.AddDate(0, 0, -lookbackDays*7/5-14)

	minOverlap := e.cfg.MinOverlap
	if minOverlap < 2 {
		minOverlap = 2
	}

	var (
		included []string
		excluded []string
		returns  = make(map[string]map[time.Time]float64)
		common   map[time.Time]bool
	)

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return analytics.CorrelationMatrix{}, err
		}

		series, err := e.provider.ReturnSeries(ctx, ticker, from, to)
		if err != nil {
			if errors.Is(err, analytics.ErrNotFound) {
				excluded = append(excluded, ticker)
				continue
			}
			return analytics.CorrelationMatrix{}, err
		}

		byDate := make(map[time.Time]float64, series.Len())
		for _, p := range series.Points {
			byDate[p.Date] = p.Return
		}

		candidate := intersect(common, byDate)
		if len(candidate) < minOverlap {
			excluded = append(excluded, ticker)
			continue
		}

		returns[ticker] = byDate
		included = append(included, ticker)
		common = candidate
	}

	if len(included) < 2 {
		return analytics.CorrelationMatrix{}, &analytics.InsufficientDataError{
			Series: "correlation universe",
			Have:   len(included),
			Need:   2,
		}
	}

	dates := make([]time.Time, 0, len(common))
	for d := range common {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	vectors := make([][]float64, len(included))
	for i, ticker := range included {
		vec := make([]float64, len(dates))
		for j, d := range dates {
			vec[j] = returns[ticker][d]
		}
		vectors[i] = vec
	}

	n := len(included)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		values[i][i] = 1
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return analytics.CorrelationMatrix{}, err
		}
		for j := i + 1; j < n; j++ {
			c := stat.Correlation(vectors[i], vectors[j], nil)
			values[i][j] = c
			values[j][i] = c
		}
	}

	e.logger.Info().
		Int("included", n).
		Int("excluded", len(excluded)).
		Int("observations", len(dates)).
		Msg("correlation matrix computed")

	return analytics.CorrelationMatrix{
		Tickers:      included,
		Excluded:     excluded,
		Values:       values,
		Observations: len(dates),
	}, nil
}

// intersect narrows the shared date set; a nil base means the first series
// seeds it.
func intersect(base map[time.Time]bool, series map[time.Time]float64) map[time.Time]bool {
	out := make(map[time.Time]bool)
	if base == nil {
		for d := range series {
			out[d] = true
		}
		return out
	}
	for d := range base {
		if _, ok := series[d]; ok {
			out[d] = true
		}
	}
	return out
}
