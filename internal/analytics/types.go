package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel buckets a composite risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
	RiskSevere   RiskLevel = "Severe"
)

// RiskAssessment is the output of a risk-metrics evaluation over one ticker
// or a whole portfolio; Ticker is nil for the portfolio scope.
type RiskAssessment struct {
	Ticker      *string
	Volatility  float64
	MaxDrawdown float64
	Beta        *float64
	Sharpe      *float64
	ValueAtRisk *float64
	RiskScore   float64
	RiskLevel   RiskLevel
	AssessedAt  time.Time
}

// RegimeType classifies a trading day's market state.
type RegimeType string

const (
	RegimeBull    RegimeType = "Bull"
	RegimeBear    RegimeType = "Bear"
	RegimeNormal  RegimeType = "Normal"
	RegimeHighVol RegimeType = "HighVolatility"
)

// RegimeTypes lists the states in model order.
var RegimeTypes = []RegimeType{RegimeBull, RegimeBear, RegimeNormal, RegimeHighVol}

// ForecastPoint projects the regime distribution at one horizon.
type ForecastPoint struct {
	HorizonDays           int
	PredictedRegime       RegimeType
	Confidence            float64
	StateProbabilities    map[RegimeType]float64
	TransitionProbability float64
}

// TransactionKind discriminates detected transactions.
type TransactionKind string

const (
	TxnBuy        TransactionKind = "Buy"
	TxnSell       TransactionKind = "Sell"
	TxnDeposit    TransactionKind = "Deposit"
	TxnWithdrawal TransactionKind = "Withdrawal"
)

// DetectedTransaction is a derived fact reconstructed from consecutive
// holdings snapshots. Ticker is empty for cash-only flows.
type DetectedTransaction struct {
	AccountID     string
	Ticker        string
	Date          time.Time
	Kind          TransactionKind
	QuantityDelta decimal.Decimal
	ValueDelta    decimal.Decimal
}

// CacheStatus describes the freshness of a served rolling-beta series.
type CacheStatus struct {
	IsStale            bool
	LastUpdated        time.Time
	RefreshRecommended bool
}

// RollingBetaPoint is one day of windowed regression output.
type RollingBetaPoint struct {
	Date     time.Time
	Beta     float64
	RSquared float64
}

// RollingBetaResult bundles the computed series with its cache status.
type RollingBetaResult struct {
	Ticker    string
	Benchmark string
	Window    int
	Points    []RollingBetaPoint
	Cache     CacheStatus
}

// PerformanceResult carries both true-performance figures for an account.
type PerformanceResult struct {
	TimeWeighted  float64
	MoneyWeighted float64
	PeriodStart   time.Time
	PeriodEnd     time.Time
}

// CorrelationMatrix is the symmetric pairwise Pearson matrix over the
// date-intersected return series of the included tickers.
type CorrelationMatrix struct {
	Tickers      []string
	Excluded     []string
	Values       [][]float64
	Observations int
}
