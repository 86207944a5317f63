package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/marketdata"
	"portfolio-analytics/internal/scheduler"
	"portfolio-analytics/internal/service"
	"portfolio-analytics/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the analytics service over an optional store; sched may
// be nil for one-shot commands.
func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	deps := service.Deps{Scheduler: sched}
	if store != nil {
		deps.Provider = marketdata.NewStoreProvider(store, a.Logger)
		deps.RiskSnaps = store
		deps.RegimeStore = store
		deps.Holdings = store
		deps.Txns = store
		deps.Locker = store
	}
	return service.New(a.Config, deps, a.Logger)
}

// Run executes the long-running background sweep service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; the sweep service needs price history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Cache.SweepInterval,
		AlignToStart: true,
		StartupDelay: a.Config.Cache.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, sched)

	a.Logger.Info().Msg("starting analytics sweep service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("sweep service terminated with error")
		return err
	}

	a.Logger.Info().Msg("analytics sweep service stopped")
	return nil
}

// AssessOptions configure the assess command.
type AssessOptions struct {
	Ticker       string
	Benchmark    string
	LookbackDays int
	Value        float64
	SnapshotAs   string
}

// BetaOptions configure the beta command.
type BetaOptions struct {
	Ticker       string
	Benchmark    string
	Window       int
	LookbackDays int
	Force        bool
}

// RegimeOptions configure the regime command.
type RegimeOptions struct {
	Date     *time.Time
	Horizons []int
}

// PerformanceOptions configure the performance command.
type PerformanceOptions struct {
	AccountID string
}

// CorrelateOptions configure the correlate command.
type CorrelateOptions struct {
	Tickers      []string
	LookbackDays int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting a rolling-beta series.
type ExportOptions struct {
	Ticker       string
	Benchmark    string
	Window       int
	LookbackDays int
	PNGPath      string
	CSVPath      string
	MaxPoints    int
}
