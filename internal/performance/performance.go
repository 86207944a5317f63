package performance

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/storage"
)

const hoursPerYear = 24 * 365.25

// Calculator computes cash-flow-aware performance from reconciled
// transactions and snapshot valuations.
type Calculator struct {
	holdings storage.HoldingsStore
	cfg      config.PerformanceConfig
	logger   zerolog.Logger
}

// NewCalculator wires a performance calculator.
func NewCalculator(holdings storage.HoldingsStore, cfg config.PerformanceConfig, logger zerolog.Logger) *Calculator {
	return &Calculator{
		holdings: holdings,
		cfg:      cfg,
		logger:   logger.With().Str("component", "performance").Logger(),
	}
}

// TruePerformance computes time-weighted and money-weighted returns for one
// account from its snapshot valuations and detected transactions.
func (c *Calculator) TruePerformance(ctx context.Context, accountID string, txns []analytics.DetectedTransaction) (analytics.PerformanceResult, error) {
	snaps, err := c.holdings.ListHoldingsSnapshots(ctx, accountID)
	if err != nil {
		return analytics.PerformanceResult{}, err
	}

	dates, values := valuationTimeline(snaps)
	if len(dates) < 2 {
		return analytics.PerformanceResult{}, &analytics.InsufficientDataError{
			Series: "account " + accountID,
			Have:   len(dates),
			Need:   2,
		}
	}

	flows := externalFlowsByDate(txns)

	twr := TimeWeighted(dates, values, flows)

	mwr, err := c.moneyWeighted(dates, values, flows)
	if err != nil {
		return analytics.PerformanceResult{}, err
	}

	c.logger.Info().
		Str("account", accountID).
		Float64("twr", twr).
		Float64("mwr", mwr).
		Msg("true performance computed")

	return analytics.PerformanceResult{
		TimeWeighted:  twr,
		MoneyWeighted: mwr,
		PeriodStart:   dates[0],
		PeriodEnd:     dates[len(dates)-1],
	}, nil
}

// TimeWeighted chains sub-period returns partitioned at external cash flows.
// Buys and sells funded from existing cash are not breakpoints; only
// deposits and withdrawals enter the flow map.
func TimeWeighted(dates []time.Time, values []float64, flows map[time.Time]float64) float64 {
	product := 1.0
	for i := 1; i < len(dates); i++ {
		start, end := values[i-1], values[i]
		if start <= 0 {
			continue
		}
		flow := flows[dates[i]]
		product *= (end - flow) / start
	}
	return product - 1
}

// moneyWeighted solves for the internal rate of return over the account's
// cash flows: the initial valuation and deposits are negative flows,
// withdrawals and the final valuation positive.
func (c *Calculator) moneyWeighted(dates []time.Time, values []float64, flows map[time.Time]float64) (float64, error) {
	start := dates[0]

	type cashFlow struct {
		years  float64
		amount float64
	}

	cfs := []cashFlow{{years: 0, amount: -values[0]}}
	for i := 1; i < len(dates); i++ {
		if flow := flows[dates[i]]; flow != 0 {
			cfs = append(cfs, cashFlow{
				years:  dates[i].Sub(start).Hours() / hoursPerYear,
				amount: -flow,
			})
		}
	}
	cfs = append(cfs, cashFlow{
		years:  dates[len(dates)-1].Sub(start).Hours() / hoursPerYear,
		amount: values[len(values)-1],
	})

	npv := func(rate float64) float64 {
		var sum float64
		for _, cf := range cfs {
			sum += cf.amount / math.Pow(1+rate, cf.years)
		}
		return sum
	}
	dnpv := func(rate float64) float64 {
		var sum float64
		for _, cf := range cfs {
			sum += -cf.years * cf.amount / math.Pow(1+rate, cf.years+1)
		}
		return sum
	}

	return c.solveIRR(npv, dnpv)
}

// solveIRR runs Newton's method seeded at zero with a bisection fallback
// bounded to the configured rate domain. The solver either converges within
// the iteration cap or reports NonConvergence; it never returns an
// approximate value as if it had converged.
func (c *Calculator) solveIRR(npv, dnpv func(float64) float64) (float64, error) {
	lo, hi := c.cfg.IRRMinRate, c.cfg.IRRMaxRate
	tol := c.cfg.IRRTolerance
	maxIter := c.cfg.IRRMaxIterations

	flo := npv(lo)

	rate := 0.0
	for i := 0; i < maxIter; i++ {
		f := npv(rate)
		if math.Abs(f) < tol {
			return rate, nil
		}

		// Shrink the bracket around the sign change.
		if (f > 0) == (flo > 0) {
			lo, flo = rate, f
		} else {
			hi = rate
		}

		next := rate
		if d := dnpv(rate); d != 0 {
			next = rate - f/d
		}
		if next <= lo || next >= hi || math.IsNaN(next) || math.IsInf(next, 0) {
			next = (lo + hi) / 2
		}

		if math.Abs(next-rate) < tol {
			if math.Abs(npv(next)) < tol {
				return next, nil
			}
			return 0, &analytics.NonConvergenceError{Iterations: i + 1, LastEstimate: next}
		}
		rate = next
	}

	return 0, &analytics.NonConvergenceError{Iterations: maxIter, LastEstimate: rate}
}

// valuationTimeline collapses snapshot rows into one total account value
// per date.
func valuationTimeline(snaps []storage.HoldingsSnapshot) ([]time.Time, []float64) {
	totals := make(map[time.Time]float64)
	for _, snap := range snaps {
		day := snap.SnapshotDate.UTC().Truncate(24 * time.Hour)
		mv, _ := snap.MarketValue.Float64()
		totals[day] += mv
	}

	dates := make([]time.Time, 0, len(totals))
	for d := range totals {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	values := make([]float64, len(dates))
	for i, d := range dates {
		values[i] = totals[d]
	}
	return dates, values
}

// externalFlowsByDate sums deposits (positive) and withdrawals (negative)
// per date; position trades are deliberately excluded.
func externalFlowsByDate(txns []analytics.DetectedTransaction) map[time.Time]float64 {
	flows := make(map[time.Time]float64)
	for _, txn := range txns {
		if txn.Kind != analytics.TxnDeposit && txn.Kind != analytics.TxnWithdrawal {
			continue
		}
		day := txn.Date.UTC().Truncate(24 * time.Hour)
		amount, _ := txn.ValueDelta.Float64()
		flows[day] += amount
	}
	return flows
}
