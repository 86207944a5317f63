package reconcile

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/storage"
)

// Cash movements smaller than this are treated as rounding noise.
var cashTolerance = decimal.NewFromFloat(0.01)

// Reconciler diffs consecutive holdings snapshots into discrete
// transactions. Reconciliation is a pure function of the snapshot sequence;
// persisting the result is an upsert and safe to re-run.
type Reconciler struct {
	holdings storage.HoldingsStore
	txns     storage.TransactionStore
	logger   zerolog.Logger
}

// NewReconciler wires the reconciliation engine; txns may be nil to skip
// persistence.
func NewReconciler(holdings storage.HoldingsStore, txns storage.TransactionStore, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		holdings: holdings,
		txns:     txns,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile loads the account's snapshot sequence, derives its transaction
// list, and upserts the rows when a transaction store is configured.
func (r *Reconciler) Reconcile(ctx context.Context, accountID string) ([]analytics.DetectedTransaction, error) {
	if accountID == "" {
		return nil, &analytics.InvalidInputError{Field: "account_id", Reason: "must not be empty"}
	}

	snaps, err := r.holdings.ListHoldingsSnapshots(ctx, accountID)
	if err != nil {
		return nil, err
	}

	detected := DiffSnapshots(accountID, snaps)

	if r.txns != nil && len(detected) > 0 {
		rows := make([]storage.TransactionRow, len(detected))
		for i, txn := range detected {
			rows[i] = storage.TransactionRow{
				AccountID:     txn.AccountID,
				Ticker:        txn.Ticker,
				TxnDate:       txn.Date,
				Kind:          string(txn.Kind),
				QuantityDelta: txn.QuantityDelta,
				ValueDelta:    txn.ValueDelta,
			}
		}
		if err := r.txns.UpsertTransactions(ctx, rows); err != nil {
			return nil, err
		}
	}

	r.logger.Info().
		Str("account", accountID).
		Int("snapshots", len(snaps)).
		Int("transactions", len(detected)).
		Msg("snapshots reconciled")

	return detected, nil
}

// DiffSnapshots derives the transaction list from a snapshot sequence.
// Deterministic and order-insensitive: input rows are regrouped by date
// before diffing, so repeated or shuffled ingestion yields the same list.
//
// A position that partially sells and rebuys within one reporting interval
// is not separable from the net delta; only the net movement is reported.
func DiffSnapshots(accountID string, snaps []storage.HoldingsSnapshot) []analytics.DetectedTransaction {
	byDate := make(map[time.Time]map[string]storage.HoldingsSnapshot)
	for _, snap := range snaps {
		day := snap.SnapshotDate.UTC().Truncate(24 * time.Hour)
		if byDate[day] == nil {
			byDate[day] = make(map[string]storage.HoldingsSnapshot)
		}
		byDate[day][snap.Ticker] = snap
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var out []analytics.DetectedTransaction
	for i := 1; i < len(dates); i++ {
		prev, curr := byDate[dates[i-1]], byDate[dates[i]]
		out = append(out, diffInterval(accountID, dates[i], prev, curr)...)
	}
	return out
}

func diffInterval(accountID string, date time.Time, prev, curr map[string]storage.HoldingsSnapshot) []analytics.DetectedTransaction {
	var out []analytics.DetectedTransaction

	// Net security flow for the interval: buys positive, sells negative.
	netFlow := decimal.Zero

	tickers := make([]string, 0, len(prev)+len(curr))
	seen := make(map[string]bool)
	for t := range prev {
		tickers = append(tickers, t)
		seen[t] = true
	}
	for t := range curr {
		if !seen[t] {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		if isCashTicker(ticker) {
			continue
		}

		before, hadBefore := prev[ticker]
		after, hasAfter := curr[ticker]

		switch {
		case !hadBefore && hasAfter:
			value := after.MarketValue
			out = append(out, analytics.DetectedTransaction{
				AccountID:     accountID,
				Ticker:        ticker,
				Date:          date,
				Kind:          analytics.TxnBuy,
				QuantityDelta: after.Quantity,
				ValueDelta:    value,
			})
			netFlow = netFlow.Add(value)

		case hadBefore && !hasAfter:
			value := before.MarketValue.Neg()
			out = append(out, analytics.DetectedTransaction{
				AccountID:     accountID,
				Ticker:        ticker,
				Date:          date,
				Kind:          analytics.TxnSell,
				QuantityDelta: before.Quantity.Neg(),
				ValueDelta:    value,
			})
			netFlow = netFlow.Add(value)

		case !after.Quantity.Equal(before.Quantity):
			delta := after.Quantity.Sub(before.Quantity)
			value := delta.Mul(after.Price)
			kind := analytics.TxnBuy
			if delta.IsNegative() {
				kind = analytics.TxnSell
			}
			out = append(out, analytics.DetectedTransaction{
				AccountID:     accountID,
				Ticker:        ticker,
				Date:          date,
				Kind:          kind,
				QuantityDelta: delta,
				ValueDelta:    value,
			})
			netFlow = netFlow.Add(value)
		}
	}

	// External cash movement: the part of the cash-balance change the
	// security flows do not account for. A buy funded from existing cash
	// cancels out; fresh money or a withdrawal does not.
	cashDelta := cashValue(curr).Sub(cashValue(prev))
	external := cashDelta.Add(netFlow)
	if external.Abs().GreaterThan(cashTolerance) {
		kind := analytics.TxnDeposit
		if external.IsNegative() {
			kind = analytics.TxnWithdrawal
		}
		out = append(out, analytics.DetectedTransaction{
			AccountID:  accountID,
			Date:       date,
			Kind:       kind,
			ValueDelta: external,
		})
	}

	return out
}

func cashValue(day map[string]storage.HoldingsSnapshot) decimal.Decimal {
	total := decimal.Zero
	for ticker, snap := range day {
		if isCashTicker(ticker) {
			total = total.Add(snap.MarketValue)
		}
	}
	return total
}

func isCashTicker(ticker string) bool {
	switch strings.ToUpper(strings.TrimPrefix(ticker, "$")) {
	case "", "CASH":
		return true
	}
	return false
}
