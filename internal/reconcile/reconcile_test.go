package reconcile

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/storage"
)

func day(d int) time.Time {
	return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC)
}

func holding(ticker string, date time.Time, qty, price float64) storage.HoldingsSnapshot {
	q := decimal.NewFromFloat(qty)
	p := decimal.NewFromFloat(price)
	return storage.HoldingsSnapshot{
		AccountID:    "acct-1",
		Ticker:       ticker,
		SnapshotDate: date,
		Quantity:     q,
		Price:        p,
		MarketValue:  q.Mul(p),
	}
}

func cash(date time.Time, amount float64) storage.HoldingsSnapshot {
	v := decimal.NewFromFloat(amount)
	return storage.HoldingsSnapshot{
		AccountID:    "acct-1",
		Ticker:       "CASH",
		SnapshotDate: date,
		Quantity:     v,
		Price:        decimal.NewFromInt(1),
		MarketValue:  v,
	}
}

func TestDiffDetectsNewPosition(t *testing.T) {
	snaps := []storage.HoldingsSnapshot{
		cash(day(1), 10000),
		cash(day(2), 5000),
		holding("AAPL", day(2), 50, 100),
	}

	txns := DiffSnapshots("acct-1", snaps)
	if len(txns) != 1 {
		t.Fatalf("应检测到 1 笔交易, 实际 %d: %+v", len(txns), txns)
	}

	buy := txns[0]
	if buy.Kind != analytics.TxnBuy || buy.Ticker != "AAPL" {
		t.Fatalf("应为 AAPL 买入, 实际 %+v", buy)
	}
	if !buy.QuantityDelta.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("数量应为 50, 实际 %s", buy.QuantityDelta)
	}
	// Funded entirely from existing cash: no external flow.
}

func TestDiffDetectsLiquidation(t *testing.T) {
	snaps := []storage.HoldingsSnapshot{
		holding("AAPL", day(1), 50, 100),
		cash(day(2), 5000),
	}

	txns := DiffSnapshots("acct-1", snaps)
	if len(txns) != 1 {
		t.Fatalf("应检测到 1 笔交易, 实际 %d: %+v", len(txns), txns)
	}

	sell := txns[0]
	if sell.Kind != analytics.TxnSell || sell.Ticker != "AAPL" {
		t.Fatalf("应为 AAPL 卖出, 实际 %+v", sell)
	}
	if !sell.QuantityDelta.Equal(decimal.NewFromInt(-50)) {
		t.Fatalf("数量应为 -50, 实际 %s", sell.QuantityDelta)
	}
}

func TestDiffDetectsQuantityChange(t *testing.T) {
	snaps := []storage.HoldingsSnapshot{
		holding("AAPL", day(1), 50, 100),
		holding("AAPL", day(2), 80, 110),
	}

	txns := DiffSnapshots("acct-1", snaps)

	var buy *analytics.DetectedTransaction
	for i := range txns {
		if txns[i].Ticker == "AAPL" {
			buy = &txns[i]
		}
	}
	if buy == nil || buy.Kind != analytics.TxnBuy {
		t.Fatalf("应检测到 AAPL 加仓: %+v", txns)
	}
	if !buy.QuantityDelta.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("数量增量应为 30, 实际 %s", buy.QuantityDelta)
	}
	// Δqty priced at the closing snapshot's price.
	if !buy.ValueDelta.Equal(decimal.NewFromInt(3300)) {
		t.Fatalf("价值增量应为 3300, 实际 %s", buy.ValueDelta)
	}
}

func TestDiffDetectsDeposit(t *testing.T) {
	snaps := []storage.HoldingsSnapshot{
		cash(day(1), 1000),
		cash(day(2), 6000),
	}

	txns := DiffSnapshots("acct-1", snaps)
	if len(txns) != 1 {
		t.Fatalf("应检测到 1 笔交易, 实际 %d: %+v", len(txns), txns)
	}
	if txns[0].Kind != analytics.TxnDeposit || txns[0].Ticker != "" {
		t.Fatalf("应为现金存入, 实际 %+v", txns[0])
	}
	if !txns[0].ValueDelta.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("存入金额应为 5000, 实际 %s", txns[0].ValueDelta)
	}
}

func TestDiffDetectsWithdrawalAfterSale(t *testing.T) {
	// Sell the whole position, then only part of the proceeds stays in cash.
	snaps := []storage.HoldingsSnapshot{
		holding("AAPL", day(1), 50, 100),
		cash(day(1), 0),
		cash(day(2), 2000),
	}

	txns := DiffSnapshots("acct-1", snaps)
	if len(txns) != 2 {
		t.Fatalf("应检测到卖出与取出两笔交易, 实际 %+v", txns)
	}

	var withdrawal *analytics.DetectedTransaction
	for i := range txns {
		if txns[i].Kind == analytics.TxnWithdrawal {
			withdrawal = &txns[i]
		}
	}
	if withdrawal == nil {
		t.Fatalf("应检测到取出: %+v", txns)
	}
	if !withdrawal.ValueDelta.Equal(decimal.NewFromInt(-3000)) {
		t.Fatalf("取出金额应为 -3000, 实际 %s", withdrawal.ValueDelta)
	}
}

func TestDiffIgnoresRoundingNoise(t *testing.T) {
	snaps := []storage.HoldingsSnapshot{
		cash(day(1), 1000),
		cash(day(2), 1000.005),
	}

	if txns := DiffSnapshots("acct-1", snaps); len(txns) != 0 {
		t.Fatalf("容差内的现金变动不应产生交易: %+v", txns)
	}
}

func TestDiffOrderInsensitive(t *testing.T) {
	snaps := []storage.HoldingsSnapshot{
		holding("AAPL", day(1), 50, 100),
		cash(day(1), 1000),
		holding("AAPL", day(2), 80, 110),
		holding("MSFT", day(2), 10, 200),
		cash(day(2), 500),
	}

	forward := DiffSnapshots("acct-1", snaps)

	reversed := make([]storage.HoldingsSnapshot, len(snaps))
	for i, s := range snaps {
		reversed[len(snaps)-1-i] = s
	}
	shuffled := DiffSnapshots("acct-1", reversed)

	if !reflect.DeepEqual(forward, shuffled) {
		t.Fatalf("乱序输入应产生相同结果:\n%+v\nvs\n%+v", forward, shuffled)
	}
}

func TestDiffSingleSnapshotNoTransactions(t *testing.T) {
	snaps := []storage.HoldingsSnapshot{holding("AAPL", day(1), 50, 100)}
	if txns := DiffSnapshots("acct-1", snaps); txns != nil {
		t.Fatalf("单个快照不应产生交易: %+v", txns)
	}
}

type recordingTxnStore struct {
	upserts [][]storage.TransactionRow
}

func (s *recordingTxnStore) UpsertTransactions(ctx context.Context, rows []storage.TransactionRow) error {
	s.upserts = append(s.upserts, rows)
	return nil
}

func (s *recordingTxnStore) ListTransactions(ctx context.Context, accountID string) ([]storage.TransactionRow, error) {
	return nil, nil
}

type staticHoldingsStore struct {
	snaps []storage.HoldingsSnapshot
}

func (s *staticHoldingsStore) ListHoldingsSnapshots(ctx context.Context, accountID string) ([]storage.HoldingsSnapshot, error) {
	return s.snaps, nil
}

func TestReconcileIsIdempotent(t *testing.T) {
	holdings := &staticHoldingsStore{snaps: []storage.HoldingsSnapshot{
		cash(day(1), 10000),
		cash(day(2), 5000),
		holding("AAPL", day(2), 50, 100),
	}}
	txnStore := &recordingTxnStore{}
	reconciler := NewReconciler(holdings, txnStore, zerolog.Nop())

	first, err := reconciler.Reconcile(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("首次对账失败: %v", err)
	}
	second, err := reconciler.Reconcile(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("再次对账失败: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatal("重复对账应产生一致的交易列表")
	}
	if len(txnStore.upserts) != 2 || !reflect.DeepEqual(txnStore.upserts[0], txnStore.upserts[1]) {
		t.Fatal("重复对账应重复相同的 upsert 行")
	}
}

func TestReconcileRejectsEmptyAccount(t *testing.T) {
	reconciler := NewReconciler(&staticHoldingsStore{}, nil, zerolog.Nop())
	if _, err := reconciler.Reconcile(context.Background(), ""); err == nil {
		t.Fatal("空账户应报参数错误")
	}
}
