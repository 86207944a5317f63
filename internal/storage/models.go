package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRow is one close observation from the collaborator-owned price store.
type PriceRow struct {
	Ticker    string
	PriceDate time.Time
	Close     decimal.Decimal
}

// HoldingsSnapshot mirrors one imported holdings line item. Rows are
// immutable facts; the engine only reads them.
type HoldingsSnapshot struct {
	AccountID    string
	Ticker       string
	SnapshotDate time.Time
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	BookValue    decimal.Decimal
	MarketValue  decimal.Decimal
}

// RiskSnapshot is a persisted risk assessment. Ticker is empty for the
// portfolio scope; the 4-tuple (portfolio, ticker, date, kind) is unique.
type RiskSnapshot struct {
	PortfolioID  string
	Ticker       string
	SnapshotDate time.Time
	Kind         string
	Volatility   float64
	MaxDrawdown  float64
	Beta         *float64
	Sharpe       *float64
	ValueAtRisk  *float64
	RiskScore    float64
	RiskLevel    string
	CreatedAt    time.Time
}

// MarketRegimeRecord is the one-row-per-day regime classification.
type MarketRegimeRecord struct {
	RegimeDate          time.Time
	RegimeType          string
	VolatilityLevel     float64
	MarketReturn        float64
	Confidence          float64
	BenchmarkTicker     string
	LookbackDays        int
	ThresholdMultiplier float64
	CreatedAt           time.Time
}

// TransactionRow is a persisted detected transaction, upsert-keyed by
// (account, ticker, date). Ticker is empty for cash-only flows.
type TransactionRow struct {
	AccountID     string
	Ticker        string
	TxnDate       time.Time
	Kind          string
	QuantityDelta decimal.Decimal
	ValueDelta    decimal.Decimal
	CreatedAt     time.Time
}
