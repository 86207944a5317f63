package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/config"
)

func testCalculator() *Calculator {
	return NewCalculator(config.RiskConfig{
		RiskFreeRate:  0.02,
		TradingDays:   252,
		VaRConfidence: 0.05,
		BetaMinPoints: 20,
	})
}

func seriesOf(ticker string, returns ...float64) analytics.ReturnSeries {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]analytics.ReturnPoint, len(returns))
	for i, r := range returns {
		points[i] = analytics.ReturnPoint{Date: base.AddDate(0, 0, i), Return: r}
	}
	return analytics.NewReturnSeries(ticker, points)
}

func TestVolatilityInsufficientData(t *testing.T) {
	calc := testCalculator()
	if _, err := calc.Volatility(seriesOf("AAPL", 0.01)); err == nil {
		t.Fatal("单个观测值应报数据不足")
	} else {
		var insufficient *analytics.InsufficientDataError
		if !errors.As(err, &insufficient) {
			t.Fatalf("错误类型不正确: %v", err)
		}
		if insufficient.Have != 1 || insufficient.Need != 2 {
			t.Fatalf("Have/Need 不正确: %+v", insufficient)
		}
	}
}

func TestVolatilityFlatSeries(t *testing.T) {
	calc := testCalculator()
	vol, err := calc.Volatility(seriesOf("AAPL", 0, 0, 0, 0))
	if err != nil {
		t.Fatalf("计算波动率失败: %v", err)
	}
	if vol != 0 {
		t.Fatalf("全零收益的波动率应为 0, 实际 %f", vol)
	}
}

func TestMaxDrawdown(t *testing.T) {
	// Curve 1.1 -> 0.99: 10% off the 1.1 peak.
	dd := MaxDrawdown(seriesOf("AAPL", 0.1, -0.1))
	if math.Abs(dd-0.1) > 1e-9 {
		t.Fatalf("最大回撤应为 0.1, 实际 %f", dd)
	}

	if dd := MaxDrawdown(seriesOf("AAPL", 0.01, 0.02, 0.03)); dd != 0 {
		t.Fatalf("单调上涨的回撤应为 0, 实际 %f", dd)
	}
}

func TestBetaScalesWithBenchmark(t *testing.T) {
	calc := testCalculator()

	bench := make([]float64, 30)
	asset := make([]float64, 30)
	for i := range bench {
		bench[i] = math.Sin(float64(i)) * 0.01
		asset[i] = 2 * bench[i]
	}

	beta := calc.Beta(seriesOf("AAPL", asset...), seriesOf("SPY", bench...))
	if beta == nil {
		t.Fatal("重叠充足时 beta 不应为 nil")
	}
	if math.Abs(*beta-2) > 1e-9 {
		t.Fatalf("beta 应为 2, 实际 %f", *beta)
	}
}

func TestBetaInsufficientOverlap(t *testing.T) {
	calc := testCalculator()
	if beta := calc.Beta(seriesOf("AAPL", 0.01, 0.02), seriesOf("SPY", 0.01, 0.02)); beta != nil {
		t.Fatalf("重叠不足时 beta 应为 nil, 实际 %f", *beta)
	}
}

func TestBetaZeroVarianceBenchmark(t *testing.T) {
	calc := testCalculator()
	asset := make([]float64, 30)
	bench := make([]float64, 30)
	for i := range asset {
		asset[i] = float64(i) * 0.001
		bench[i] = 0.01
	}
	if beta := calc.Beta(seriesOf("AAPL", asset...), seriesOf("SPY", bench...)); beta != nil {
		t.Fatalf("基准方差为零时 beta 应为 nil, 实际 %f", *beta)
	}
}

func TestSharpeNilOnZeroVol(t *testing.T) {
	calc := testCalculator()
	if sharpe := calc.Sharpe(seriesOf("AAPL", 0, 0, 0), 0); sharpe != nil {
		t.Fatalf("零波动率时 Sharpe 应为 nil, 实际 %f", *sharpe)
	}
}

func TestValueAtRiskScalesWithValue(t *testing.T) {
	calc := testCalculator()
	series := seriesOf("AAPL", -0.05, -0.02, -0.01, 0, 0.01, 0.01, 0.02, 0.02, 0.03, 0.04)

	unit := calc.ValueAtRisk(series, 0)
	scaled := calc.ValueAtRisk(series, 10000)
	if unit == nil || scaled == nil {
		t.Fatal("VaR 不应为 nil")
	}
	if math.Abs(*scaled-*unit*10000) > 1e-6 {
		t.Fatalf("VaR 应随价值线性缩放: unit=%f scaled=%f", *unit, *scaled)
	}
	if *unit > 0 {
		t.Fatalf("含亏损分布的 VaR 应为负值, 实际 %f", *unit)
	}
}

func TestBucketScoreMultiplier(t *testing.T) {
	cases := []struct {
		score      float64
		multiplier float64
		want       analytics.RiskLevel
	}{
		{score: 20, multiplier: 1, want: analytics.RiskLow},
		{score: 20, multiplier: 0.75, want: analytics.RiskModerate}, // tightened cutoffs
		{score: 30, multiplier: 1, want: analytics.RiskModerate},
		{score: 30, multiplier: 1.25, want: analytics.RiskLow}, // relaxed cutoffs
		{score: 60, multiplier: 1, want: analytics.RiskHigh},
		{score: 80, multiplier: 1, want: analytics.RiskSevere},
		{score: 80, multiplier: 1.25, want: analytics.RiskHigh},
	}

	for _, tc := range cases {
		if got := BucketScore(tc.score, tc.multiplier); got != tc.want {
			t.Fatalf("score=%.0f multiplier=%.2f: 期望 %s, 实际 %s", tc.score, tc.multiplier, tc.want, got)
		}
	}
}

func TestAssessWithBenchmark(t *testing.T) {
	calc := testCalculator()

	bench := make([]float64, 40)
	asset := make([]float64, 40)
	for i := range bench {
		bench[i] = math.Sin(float64(i)/3) * 0.02
		asset[i] = 1.5 * bench[i]
	}

	benchmark := seriesOf("SPY", bench...)
	assessment, err := calc.Assess(Input{
		Series:    seriesOf("AAPL", asset...),
		Benchmark: &benchmark,
		Value:     10000,
	})
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}

	if assessment.Ticker == nil || *assessment.Ticker != "AAPL" {
		t.Fatalf("ticker 不正确: %+v", assessment.Ticker)
	}
	if assessment.Beta == nil {
		t.Fatal("beta 不应为 nil")
	}
	if math.Abs(*assessment.Beta-1.5) > 1e-9 {
		t.Fatalf("beta 应为 1.5, 实际 %f", *assessment.Beta)
	}
	if assessment.Sharpe == nil || assessment.ValueAtRisk == nil {
		t.Fatal("Sharpe 与 VaR 不应为 nil")
	}
	if assessment.RiskScore < 0 || assessment.RiskScore > 100 {
		t.Fatalf("综合评分应在 [0,100] 内, 实际 %f", assessment.RiskScore)
	}
}

func TestAssessWithoutBenchmark(t *testing.T) {
	calc := testCalculator()
	assessment, err := calc.Assess(Input{Series: seriesOf("AAPL", 0.01, -0.02, 0.015, -0.01)})
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}
	if assessment.Beta != nil || assessment.Sharpe != nil || assessment.ValueAtRisk != nil {
		t.Fatal("无基准时 beta/Sharpe/VaR 应为 nil")
	}
}
