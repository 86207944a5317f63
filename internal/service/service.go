package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/correlation"
	"portfolio-analytics/internal/marketdata"
	"portfolio-analytics/internal/performance"
	"portfolio-analytics/internal/reconcile"
	"portfolio-analytics/internal/regime"
	"portfolio-analytics/internal/risk"
	"portfolio-analytics/internal/rolling"
	"portfolio-analytics/internal/scheduler"
	"portfolio-analytics/internal/storage"
)

// Service orchestrates the analytics engines behind one callable surface.
type Service struct {
	cfg         *config.Config
	scheduler   *scheduler.Scheduler
	provider    marketdata.Provider
	risk        *risk.Calculator
	rolling     *rolling.Engine
	regimes     *regime.Detector
	reconciler  *reconcile.Reconciler
	performance *performance.Calculator
	correlation *correlation.Engine
	riskSnaps   storage.RiskSnapshotStore
	regimeStore storage.RegimeStore
	locker      storage.AdvisoryLocker
	lockKey     int64
	logger      zerolog.Logger
}

// Deps bundles the collaborators the service is wired with. Store fields
// may be nil when persistence is not configured.
type Deps struct {
	Scheduler   *scheduler.Scheduler
	Provider    marketdata.Provider
	RiskSnaps   storage.RiskSnapshotStore
	RegimeStore storage.RegimeStore
	Holdings    storage.HoldingsStore
	Txns        storage.TransactionStore
	Locker      storage.AdvisoryLocker
}

// New constructs the analytics service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		cfg:         cfg,
		scheduler:   deps.Scheduler,
		provider:    deps.Provider,
		risk:        risk.NewCalculator(cfg.Risk),
		rolling:     rolling.NewEngine(deps.Provider, rolling.Options{TTL: cfg.Cache.TTL, BackgroundOnly: cfg.Cache.BackgroundOnly}, logger),
		regimes:     regime.NewDetector(deps.Provider, deps.RegimeStore, cfg.Regime, logger),
		reconciler:  reconcile.NewReconciler(deps.Holdings, deps.Txns, logger),
		performance: performance.NewCalculator(deps.Holdings, cfg.Performance, logger),
		correlation: correlation.NewEngine(deps.Provider, cfg.Correlation, logger),
		riskSnaps:   deps.RiskSnaps,
		regimeStore: deps.RegimeStore,
		locker:      deps.Locker,
		lockKey:     cfg.Cache.AdvisoryLockKey,
		logger:      logger.With().Str("component", "service").Logger(),
	}
}

// AssessRisk evaluates risk metrics over an already-materialised series.
// When no threshold multiplier is set the active regime's is applied.
func (s *Service) AssessRisk(ctx context.Context, in risk.Input) (analytics.RiskAssessment, error) {
	if in.ThresholdMultiplier <= 0 {
		in.ThresholdMultiplier = s.activeMultiplier(ctx)
	}
	return s.risk.Assess(in)
}

// AssessTicker loads a ticker's return series (and the benchmark's) over
// the lookback and assesses it.
func (s *Service) AssessTicker(ctx context.Context, ticker, benchmark string, lookbackDays int, value float64) (analytics.RiskAssessment, error) {
	if ticker == "" {
		return analytics.RiskAssessment{}, &analytics.InvalidInputError{Field: "ticker", Reason: "must not be empty"}
	}
	if lookbackDays <= 0 {
		lookbackDays = s.cfg.Correlation.LookbackDays
	}

	to := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	from := to.AddDate(0, 0, -lookbackDays*7/5-14)

	series, err := s.provider.ReturnSeries(ctx, ticker, from, to)
	if err != nil {
		return analytics.RiskAssessment{}, err
	}

	in := risk.Input{Series: series, Value: value}
	if benchmark != "" {
		bench, err := s.provider.ReturnSeries(ctx, benchmark, from, to)
		if err != nil {
			return analytics.RiskAssessment{}, err
		}
		in.Benchmark = &bench
	}

	return s.AssessRisk(ctx, in)
}

// SnapshotRisk persists an assessment for today under the portfolio (or
// position) key; re-snapshotting the same day overwrites.
func (s *Service) SnapshotRisk(ctx context.Context, portfolioID string, assessment analytics.RiskAssessment) error {
	if s.riskSnaps == nil {
		return storage.ErrNotConfigured
	}
	if portfolioID == "" {
		return &analytics.InvalidInputError{Field: "portfolio_id", Reason: "must not be empty"}
	}

	kind := "portfolio"
	ticker := ""
	if assessment.Ticker != nil {
		kind = "position"
		ticker = *assessment.Ticker
	}

	snap := storage.RiskSnapshot{
		PortfolioID:  portfolioID,
		Ticker:       ticker,
		SnapshotDate: time.Now().UTC().Truncate(24 * time.Hour),
		Kind:         kind,
		Volatility:   assessment.Volatility,
		MaxDrawdown:  assessment.MaxDrawdown,
		Beta:         assessment.Beta,
		Sharpe:       assessment.Sharpe,
		ValueAtRisk:  assessment.ValueAtRisk,
		RiskScore:    assessment.RiskScore,
		RiskLevel:    string(assessment.RiskLevel),
	}
	return s.riskSnaps.UpsertRiskSnapshot(ctx, snap)
}

// RollingBeta serves the cached (or recomputed) windowed regression series.
func (s *Service) RollingBeta(ctx context.Context, ticker, benchmark string, window, lookbackDays int, force bool) (analytics.RollingBetaResult, error) {
	if benchmark == "" {
		benchmark = s.cfg.Regime.BenchmarkTicker
	}
	return s.rolling.Request(ctx, ticker, benchmark, window, lookbackDays, force)
}

// Regime returns the record for a date, computing and persisting it when
// missing. A nil date means the latest known record, detecting today's when
// the table is empty.
func (s *Service) Regime(ctx context.Context, date *time.Time) (storage.MarketRegimeRecord, error) {
	if s.regimeStore == nil {
		return s.regimes.DetectAndStore(ctx, s.regimeDate(date))
	}

	if date == nil {
		rec, err := s.regimeStore.GetLatestRegime(ctx)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return storage.MarketRegimeRecord{}, err
		}
		return s.regimes.DetectAndStore(ctx, s.regimeDate(nil))
	}

	day := s.regimeDate(date)
	rec, err := s.regimeStore.GetRegimeRecord(ctx, day)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return storage.MarketRegimeRecord{}, err
	}
	return s.regimes.DetectAndStore(ctx, day)
}

// ForecastRegime projects the state distribution over the given horizons.
func (s *Service) ForecastRegime(horizons []int) []analytics.ForecastPoint {
	if len(horizons) == 0 {
		horizons = []int{5, 10, 30}
	}
	return s.regimes.Forecast(horizons)
}

// ReconcileSnapshots derives (and persists) the account's transaction list.
func (s *Service) ReconcileSnapshots(ctx context.Context, accountID string) ([]analytics.DetectedTransaction, error) {
	return s.reconciler.Reconcile(ctx, accountID)
}

// TruePerformance computes TWR and MWR for an account from its reconciled
// transactions.
func (s *Service) TruePerformance(ctx context.Context, accountID string) (analytics.PerformanceResult, error) {
	txns, err := s.reconciler.Reconcile(ctx, accountID)
	if err != nil {
		return analytics.PerformanceResult{}, err
	}
	return s.performance.TruePerformance(ctx, accountID, txns)
}

// CorrelationMatrix computes the pairwise matrix for a ticker universe.
func (s *Service) CorrelationMatrix(ctx context.Context, tickers []string, lookbackDays int) (analytics.CorrelationMatrix, error) {
	return s.correlation.Matrix(ctx, tickers, lookbackDays)
}

// ListRecentRegimes exposes recent records for display.
func (s *Service) ListRecentRegimes(ctx context.Context, limit int) ([]storage.MarketRegimeRecord, error) {
	if s.regimeStore == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.regimeStore.ListRecentRegimes(ctx, limit)
}

// Run starts the scheduled background sweep: today's regime record plus a
// forced recompute of every actively-requested rolling-beta key.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Sweep)
}

// Sweep executes one background maintenance pass.
func (s *Service) Sweep(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip sweep because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if _, err := s.regimes.DetectAndStore(ctx, tick); err != nil {
		s.logger.Error().Err(err).Time("tick", tick).Msg("failed to refresh regime record")
	}

	s.rolling.RecomputeAll(ctx)
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// activeMultiplier resolves the current regime's threshold multiplier,
// defaulting to 1 when no record can be served.
func (s *Service) activeMultiplier(ctx context.Context) float64 {
	if s.regimeStore == nil {
		return 1
	}
	rec, err := s.regimeStore.GetLatestRegime(ctx)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) && !errors.Is(err, storage.ErrNotConfigured) {
			s.logger.Warn().Err(err).Msg("failed to load latest regime; using neutral multiplier")
		}
		return 1
	}
	if rec.ThresholdMultiplier <= 0 {
		return 1
	}
	return rec.ThresholdMultiplier
}

func (s *Service) regimeDate(date *time.Time) time.Time {
	if date != nil {
		return date.UTC().Truncate(24 * time.Hour)
	}
	return time.Now().UTC().Truncate(24 * time.Hour)
}
