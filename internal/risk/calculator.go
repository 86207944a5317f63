package risk

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/config"
)

// Default composite-score bucket cutoffs before regime scaling.
const (
	cutoffModerate = 25.0
	cutoffHigh     = 50.0
	cutoffSevere   = 75.0
)

// Calculator turns return series into risk metrics. It is pure: persistence
// of an assessment is an explicit, separate snapshot operation.
type Calculator struct {
	riskFreeRate  float64
	tradingDays   int
	varConfidence float64
	betaMinPoints int
}

// NewCalculator builds a Calculator from config.
func NewCalculator(cfg config.RiskConfig) *Calculator {
	return &Calculator{
		riskFreeRate:  cfg.RiskFreeRate,
		tradingDays:   cfg.TradingDays,
		varConfidence: cfg.VaRConfidence,
		betaMinPoints: cfg.BetaMinPoints,
	}
}

// Input parameterises one assessment.
type Input struct {
	Series    analytics.ReturnSeries
	Benchmark *analytics.ReturnSeries
	// Value scales historical VaR to a money amount; 1 when unset.
	Value float64
	// ThresholdMultiplier comes from the active market regime. Values below
	// 1 tighten the bucket cutoffs, above 1 relax them. 1 when unset.
	ThresholdMultiplier float64
}

// Assess computes the full risk picture for a single series.
func (c *Calculator) Assess(in Input) (analytics.RiskAssessment, error) {
	vol, err := c.Volatility(in.Series)
	if err != nil {
		return analytics.RiskAssessment{}, err
	}

	assessment := analytics.RiskAssessment{
		Volatility:  vol,
		MaxDrawdown: MaxDrawdown(in.Series),
		AssessedAt:  time.Now().UTC(),
	}
	if in.Series.Ticker != "" {
		ticker := in.Series.Ticker
		assessment.Ticker = &ticker
	}

	if in.Benchmark != nil {
		assessment.Beta = c.Beta(in.Series, *in.Benchmark)
		assessment.Sharpe = c.Sharpe(in.Series, vol)
		assessment.ValueAtRisk = c.ValueAtRisk(in.Series, in.Value)
	}

	multiplier := in.ThresholdMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	assessment.RiskScore = compositeScore(vol, assessment.MaxDrawdown, assessment.Beta)
	assessment.RiskLevel = BucketScore(assessment.RiskScore, multiplier)

	return assessment, nil
}

// Volatility is the annualized standard deviation of returns.
func (c *Calculator) Volatility(series analytics.ReturnSeries) (float64, error) {
	if series.Len() < 2 {
		return 0, &analytics.InsufficientDataError{Series: seriesName(series), Have: series.Len(), Need: 2}
	}
	sd := stat.StdDev(series.Returns(), nil)
	return sd * math.Sqrt(float64(c.tradingDays)), nil
}

// MaxDrawdown is the largest peak-to-trough decline over the cumulative
// value curve, reported as a positive fraction. Zero for a monotonically
// non-decreasing curve.
func MaxDrawdown(series analytics.ReturnSeries) float64 {
	curve := series.CumulativeCurve()

	peak := 1.0
	worst := 0.0
	for _, value := range curve {
		if value > peak {
			peak = value
			continue
		}
		if dd := (peak - value) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

// Beta regresses the series on the benchmark over their date intersection.
// Nil when the benchmark variance is zero or the overlap is below the
// configured minimum.
func (c *Calculator) Beta(series, benchmark analytics.ReturnSeries) *float64 {
	asset, bench, _ := analytics.Align(series, benchmark)
	if len(asset) < c.betaMinPoints {
		return nil
	}

	benchVar := stat.Variance(bench, nil)
	if benchVar == 0 {
		return nil
	}

	beta := stat.Covariance(asset, bench, nil) / benchVar
	return &beta
}

// Sharpe is the annualized excess return over volatility. Nil when
// volatility is zero.
func (c *Calculator) Sharpe(series analytics.ReturnSeries, annualizedVol float64) *float64 {
	if annualizedVol == 0 {
		return nil
	}
	meanAnnual := stat.Mean(series.Returns(), nil) * float64(c.tradingDays)
	sharpe := (meanAnnual - c.riskFreeRate) / annualizedVol
	return &sharpe
}

// ValueAtRisk is the historical-simulation percentile of the return
// distribution scaled by the position or portfolio value.
func (c *Calculator) ValueAtRisk(series analytics.ReturnSeries, value float64) *float64 {
	if series.Len() < 2 {
		return nil
	}
	if value <= 0 {
		value = 1
	}

	returns := series.Returns()
	sort.Float64s(returns)
	percentile := stat.Quantile(c.varConfidence, stat.Empirical, returns, nil)

	vaR := percentile * value
	return &vaR
}

// BucketScore maps a composite score into a risk level, scaling the cutoffs
// by the regime threshold multiplier first. A multiplier below 1 makes the
// same score land in a stricter bucket.
func BucketScore(score, multiplier float64) analytics.RiskLevel {
	switch {
	case score < cutoffModerate*multiplier:
		return analytics.RiskLow
	case score < cutoffHigh*multiplier:
		return analytics.RiskModerate
	case score < cutoffSevere*multiplier:
		return analytics.RiskHigh
	default:
		return analytics.RiskSevere
	}
}

// compositeScore blends normalized volatility, drawdown severity, and beta
// deviation from 1 into a 0-100 score. Without a beta the volatility and
// drawdown terms absorb its weight.
func compositeScore(vol, drawdown float64, beta *float64) float64 {
	volTerm := clamp01(vol / 0.60)
	ddTerm := clamp01(drawdown / 0.50)

	var score float64
	if beta != nil {
		betaTerm := clamp01(math.Abs(*beta - 1))
		score = volTerm*45 + ddTerm*35 + betaTerm*20
	} else {
		score = volTerm*55 + ddTerm*45
	}

	return clamp01(score/100) * 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func seriesName(series analytics.ReturnSeries) string {
	if series.Ticker != "" {
		return series.Ticker
	}
	return "portfolio"
}
