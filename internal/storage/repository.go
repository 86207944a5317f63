package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listPricesBetweenSQL = `SELECT ticker, price_date, close
    FROM price_history
    WHERE ticker = $1
      AND price_date >= $2
      AND price_date < $3
    ORDER BY price_date;`

	listHoldingsSnapshotsSQL = `SELECT
        account_id,
        ticker,
        snapshot_date,
        quantity,
        price,
        book_value,
        market_value
    FROM holdings_snapshots
    WHERE account_id = $1
    ORDER BY snapshot_date, ticker;`

	upsertRiskSnapshotSQL = `INSERT INTO risk_snapshots (
        portfolio_id,
        ticker,
        snapshot_date,
        kind,
        volatility,
        max_drawdown,
        beta,
        sharpe,
        value_at_risk,
        risk_score,
        risk_level
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (portfolio_id, ticker, snapshot_date, kind) DO UPDATE
    SET
        volatility    = EXCLUDED.volatility,
        max_drawdown  = EXCLUDED.max_drawdown,
        beta          = EXCLUDED.beta,
        sharpe        = EXCLUDED.sharpe,
        value_at_risk = EXCLUDED.value_at_risk,
        risk_score    = EXCLUDED.risk_score,
        risk_level    = EXCLUDED.risk_level;`

	listRiskSnapshotsSQL = `SELECT
        portfolio_id,
        ticker,
        snapshot_date,
        kind,
        volatility,
        max_drawdown,
        beta,
        sharpe,
        value_at_risk,
        risk_score,
        risk_level,
        created_at
    FROM risk_snapshots
    WHERE portfolio_id = $1
    ORDER BY snapshot_date DESC, ticker
    LIMIT $2;`

	upsertRegimeSQL = `INSERT INTO market_regimes (
        regime_date,
        regime_type,
        volatility_level,
        market_return,
        confidence,
        benchmark_ticker,
        lookback_days,
        threshold_multiplier
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (regime_date) DO UPDATE
    SET
        regime_type          = EXCLUDED.regime_type,
        volatility_level     = EXCLUDED.volatility_level,
        market_return        = EXCLUDED.market_return,
        confidence           = EXCLUDED.confidence,
        benchmark_ticker     = EXCLUDED.benchmark_ticker,
        lookback_days        = EXCLUDED.lookback_days,
        threshold_multiplier = EXCLUDED.threshold_multiplier;`

	getRegimeByDateSQL = `SELECT
        regime_date, regime_type, volatility_level, market_return,
        confidence, benchmark_ticker, lookback_days, threshold_multiplier, created_at
    FROM market_regimes
    WHERE regime_date = $1;`

	getLatestRegimeSQL = `SELECT
        regime_date, regime_type, volatility_level, market_return,
        confidence, benchmark_ticker, lookback_days, threshold_multiplier, created_at
    FROM market_regimes
    ORDER BY regime_date DESC
    LIMIT 1;`

	listRecentRegimesSQL = `SELECT
        regime_date, regime_type, volatility_level, market_return,
        confidence, benchmark_ticker, lookback_days, threshold_multiplier, created_at
    FROM market_regimes
    ORDER BY regime_date DESC
    LIMIT $1;`

	upsertTransactionSQL = `INSERT INTO detected_transactions (
        account_id,
        ticker,
        txn_date,
        kind,
        quantity_delta,
        value_delta
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (account_id, ticker, txn_date) DO UPDATE
    SET
        kind           = EXCLUDED.kind,
        quantity_delta = EXCLUDED.quantity_delta,
        value_delta    = EXCLUDED.value_delta;`

	listTransactionsSQL = `SELECT
        account_id,
        ticker,
        txn_date,
        kind,
        quantity_delta,
        value_delta,
        created_at
    FROM detected_transactions
    WHERE account_id = $1
    ORDER BY txn_date, ticker;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PriceStore reads ordered close series from the collaborator price table.
type PriceStore interface {
	ListPricesBetween(ctx context.Context, ticker string, from, to time.Time) ([]PriceRow, error)
}

// HoldingsStore reads imported holdings snapshots for one account.
type HoldingsStore interface {
	ListHoldingsSnapshots(ctx context.Context, accountID string) ([]HoldingsSnapshot, error)
}

// RiskSnapshotStore persists explicit risk snapshots.
type RiskSnapshotStore interface {
	UpsertRiskSnapshot(ctx context.Context, snap RiskSnapshot) error
	ListRiskSnapshots(ctx context.Context, portfolioID string, limit int) ([]RiskSnapshot, error)
}

// RegimeStore persists one regime record per calendar date.
type RegimeStore interface {
	UpsertRegimeRecord(ctx context.Context, rec MarketRegimeRecord) error
	GetRegimeRecord(ctx context.Context, date time.Time) (MarketRegimeRecord, error)
	GetLatestRegime(ctx context.Context) (MarketRegimeRecord, error)
	ListRecentRegimes(ctx context.Context, limit int) ([]MarketRegimeRecord, error)
}

// TransactionStore persists detected transactions by their natural key.
type TransactionStore interface {
	UpsertTransactions(ctx context.Context, rows []TransactionRow) error
	ListTransactions(ctx context.Context, accountID string) ([]TransactionRow, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the engine's persisted tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListPricesBetween returns close observations ordered by date.
func (s *Store) ListPricesBetween(ctx context.Context, ticker string, from, to time.Time) ([]PriceRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, ticker, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices between: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]PriceRow, 0)
	for rows.Next() {
		var row PriceRow
		var closeStr string
		if err := rows.Scan(&row.Ticker, &row.PriceDate, &closeStr); err != nil {
			return nil, err
		}
		row.Close, err = decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("parse close: %w", err)
		}
		prices = append(prices, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

// ListHoldingsSnapshots returns all snapshot rows for one account ordered by
// date then ticker.
func (s *Store) ListHoldingsSnapshots(ctx context.Context, accountID string) ([]HoldingsSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHoldingsSnapshotsSQL, accountID)
	if queryErr != nil {
		return nil, fmt.Errorf("list holdings snapshots: %w", queryErr)
	}
	defer rows.Close()

	snaps := make([]HoldingsSnapshot, 0)
	for rows.Next() {
		snap, scanErr := scanHoldingsSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

// UpsertRiskSnapshot persists or overwrites the day's risk snapshot.
func (s *Store) UpsertRiskSnapshot(ctx context.Context, snap RiskSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertRiskSnapshotSQL,
		snap.PortfolioID,
		snap.Ticker,
		snap.SnapshotDate,
		snap.Kind,
		snap.Volatility,
		snap.MaxDrawdown,
		snap.Beta,
		snap.Sharpe,
		snap.ValueAtRisk,
		snap.RiskScore,
		snap.RiskLevel,
	)
	if execErr != nil {
		return fmt.Errorf("upsert risk snapshot: %w", execErr)
	}
	return nil
}

// ListRiskSnapshots lists the most recent snapshots for a portfolio.
func (s *Store) ListRiskSnapshots(ctx context.Context, portfolioID string, limit int) ([]RiskSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRiskSnapshotsSQL, portfolioID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list risk snapshots: %w", queryErr)
	}
	defer rows.Close()

	snaps := make([]RiskSnapshot, 0, limit)
	for rows.Next() {
		var snap RiskSnapshot
		var beta, sharpe, valueAtRisk sql.NullFloat64
		if err := rows.Scan(
			&snap.PortfolioID,
			&snap.Ticker,
			&snap.SnapshotDate,
			&snap.Kind,
			&snap.Volatility,
			&snap.MaxDrawdown,
			&beta,
			&sharpe,
			&valueAtRisk,
			&snap.RiskScore,
			&snap.RiskLevel,
			&snap.CreatedAt,
		); err != nil {
			return nil, err
		}
		snap.Beta = nullableFloat(beta)
		snap.Sharpe = nullableFloat(sharpe)
		snap.ValueAtRisk = nullableFloat(valueAtRisk)
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

// UpsertRegimeRecord persists or overwrites the regime row for its date.
func (s *Store) UpsertRegimeRecord(ctx context.Context, rec MarketRegimeRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertRegimeSQL,
		rec.RegimeDate,
		rec.RegimeType,
		rec.VolatilityLevel,
		rec.MarketReturn,
		rec.Confidence,
		rec.BenchmarkTicker,
		rec.LookbackDays,
		rec.ThresholdMultiplier,
	)
	if execErr != nil {
		return fmt.Errorf("upsert regime record: %w", execErr)
	}
	return nil
}

// GetRegimeRecord fetches the record for one calendar date.
func (s *Store) GetRegimeRecord(ctx context.Context, date time.Time) (MarketRegimeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return MarketRegimeRecord{}, err
	}
	return scanRegime(pool.QueryRow(ctx, getRegimeByDateSQL, date))
}

// GetLatestRegime fetches the most recent regime record.
func (s *Store) GetLatestRegime(ctx context.Context) (MarketRegimeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return MarketRegimeRecord{}, err
	}
	return scanRegime(pool.QueryRow(ctx, getLatestRegimeSQL))
}

// ListRecentRegimes lists recent records ordered by descending date.
func (s *Store) ListRecentRegimes(ctx context.Context, limit int) ([]MarketRegimeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRegimesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent regimes: %w", queryErr)
	}
	defer rows.Close()

	records := make([]MarketRegimeRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanRegime(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// UpsertTransactions persists detected transactions; re-running with the
// same rows never duplicates.
func (s *Store) UpsertTransactions(ctx context.Context, txns []TransactionRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, txn := range txns {
		_, execErr := pool.Exec(ctx, upsertTransactionSQL,
			txn.AccountID,
			txn.Ticker,
			txn.TxnDate,
			txn.Kind,
			txn.QuantityDelta.String(),
			txn.ValueDelta.String(),
		)
		if execErr != nil {
			return fmt.Errorf("upsert transaction: %w", execErr)
		}
	}
	return nil
}

// ListTransactions returns the chronological transaction list for an account.
func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]TransactionRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTransactionsSQL, accountID)
	if queryErr != nil {
		return nil, fmt.Errorf("list transactions: %w", queryErr)
	}
	defer rows.Close()

	txns := make([]TransactionRow, 0)
	for rows.Next() {
		var txn TransactionRow
		var qtyStr, valStr string
		if err := rows.Scan(
			&txn.AccountID,
			&txn.Ticker,
			&txn.TxnDate,
			&txn.Kind,
			&qtyStr,
			&valStr,
			&txn.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		txn.QuantityDelta, convErr = decimal.NewFromString(qtyStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse quantity delta: %w", convErr)
		}
		txn.ValueDelta, convErr = decimal.NewFromString(valStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse value delta: %w", convErr)
		}

		txns = append(txns, txn)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return txns, nil
}

func scanHoldingsSnapshot(rows pgx.Rows) (HoldingsSnapshot, error) {
	var (
		snap                              HoldingsSnapshot
		qtyStr, priceStr, bookStr, mvStr string
	)

	if err := rows.Scan(
		&snap.AccountID,
		&snap.Ticker,
		&snap.SnapshotDate,
		&qtyStr,
		&priceStr,
		&bookStr,
		&mvStr,
	); err != nil {
		return HoldingsSnapshot{}, err
	}

	var err error
	if snap.Quantity, err = decimal.NewFromString(qtyStr); err != nil {
		return HoldingsSnapshot{}, fmt.Errorf("parse quantity: %w", err)
	}
	if snap.Price, err = decimal.NewFromString(priceStr); err != nil {
		return HoldingsSnapshot{}, fmt.Errorf("parse price: %w", err)
	}
	if snap.BookValue, err = decimal.NewFromString(bookStr); err != nil {
		return HoldingsSnapshot{}, fmt.Errorf("parse book value: %w", err)
	}
	if snap.MarketValue, err = decimal.NewFromString(mvStr); err != nil {
		return HoldingsSnapshot{}, fmt.Errorf("parse market value: %w", err)
	}

	return snap, nil
}

func scanRegime(row pgx.Row) (MarketRegimeRecord, error) {
	var rec MarketRegimeRecord
	if err := row.Scan(
		&rec.RegimeDate,
		&rec.RegimeType,
		&rec.VolatilityLevel,
		&rec.MarketReturn,
		&rec.Confidence,
		&rec.BenchmarkTicker,
		&rec.LookbackDays,
		&rec.ThresholdMultiplier,
		&rec.CreatedAt,
	); err != nil {
		return MarketRegimeRecord{}, err
	}
	return rec, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}
