package rolling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/marketdata"
)

// Supported regression window sizes in trading days.
var supportedWindows = map[int]bool{30: true, 60: true, 90: true}

// Options tune the engine's cache behaviour.
type Options struct {
	TTL            time.Duration
	BackgroundOnly bool
}

// Key identifies one cached rolling-beta series.
type Key struct {
	Ticker    string
	Benchmark string
	Window    int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Ticker, k.Benchmark, k.Window)
}

// entry holds the per-key cache state. value swaps atomically under the
// engine mutex: a computation either fully succeeds or leaves the previous
// value in place.
type entry struct {
	result     *analytics.RollingBetaResult
	computedAt time.Time
	lookback   int
	inFlight   chan struct{}
	lastErr    error
}

// Engine computes windowed OLS beta/R² series against a benchmark and owns
// the staleness-aware cache. At most one computation runs per key; waiters
// share the single in-flight result.
type Engine struct {
	provider marketdata.Provider
	opts     Options
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[Key]*entry
}

// NewEngine constructs a rolling regression engine.
func NewEngine(provider marketdata.Provider, opts Options, logger zerolog.Logger) *Engine {
	if opts.TTL <= 0 {
		opts.TTL = 6 * time.Hour
	}
	return &Engine{
		provider: provider,
		opts:     opts,
		logger:   logger.With().Str("component", "rolling_engine").Logger(),
		entries:  make(map[Key]*entry),
	}
}

// Request serves the rolling-beta series for (ticker, benchmark, window),
// recomputing when the cache is stale or force is set. Concurrent callers
// for one key join the in-flight computation instead of duplicating it.
func (e *Engine) Request(ctx context.Context, ticker, benchmark string, window, lookbackDays int, force bool) (analytics.RollingBetaResult, error) {
	if !supportedWindows[window] {
		return analytics.RollingBetaResult{}, &analytics.InvalidInputError{
			Field:  "window",
			Reason: fmt.Sprintf("%d is not one of 30, 60, 90", window),
		}
	}
	if ticker == "" || benchmark == "" {
		return analytics.RollingBetaResult{}, &analytics.InvalidInputError{Field: "ticker", Reason: "ticker and benchmark are required"}
	}
	if lookbackDays < window {
		lookbackDays = window * 4
	}

	key := Key{Ticker: ticker, Benchmark: benchmark, Window: window}

	for {
		e.mu.Lock()
		ent, ok := e.entries[key]
		if !ok {
			ent = &entry{}
			e.entries[key] = ent
		}
		ent.lookback = lookbackDays

		if ent.result != nil && !force && time.Since(ent.computedAt) <= e.opts.TTL {
			res := *ent.result
			res.Cache = e.status(ent)
			e.mu.Unlock()
			return res, nil
		}

		if ent.inFlight != nil {
			wait := ent.inFlight
			e.mu.Unlock()

			select {
			case <-ctx.Done():
				// Abandoning a request never cancels the shared computation;
				// other waiters may still need the result.
				return analytics.RollingBetaResult{}, ctx.Err()
			case <-wait:
			}

			e.mu.Lock()
			result, doneAt, lastErr := ent.result, ent.computedAt, ent.lastErr
			e.mu.Unlock()

			if lastErr != nil {
				return analytics.RollingBetaResult{}, lastErr
			}
			if result != nil {
				res := *result
				res.Cache = analytics.CacheStatus{LastUpdated: doneAt}
				return res, nil
			}
			// Raced with an eviction; start over.
			continue
		}

		if ent.result == nil && e.opts.BackgroundOnly && !force {
			e.mu.Unlock()
			return analytics.RollingBetaResult{}, &analytics.NotAvailableError{Key: key.String()}
		}

		done := make(chan struct{})
		ent.inFlight = done
		e.mu.Unlock()

		result, err := e.compute(context.WithoutCancel(ctx), key, lookbackDays)

		e.mu.Lock()
		if err == nil {
			ent.result = &result
			ent.computedAt = time.Now().UTC()
		}
		ent.lastErr = err
		ent.inFlight = nil
		close(done)
		doneAt := ent.computedAt
		e.mu.Unlock()

		if err != nil {
			return analytics.RollingBetaResult{}, err
		}
		result.Cache = analytics.CacheStatus{LastUpdated: doneAt}
		return result, nil
	}
}

// ActiveKeys lists every key that has been requested, for the background sweep.
func (e *Engine) ActiveKeys() []Key {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]Key, 0, len(e.entries))
	for k := range e.entries {
		keys = append(keys, k)
	}
	return keys
}

// RecomputeAll force-refreshes every actively-requested key. Used by the
// scheduled sweep; a concurrent foreground request simply joins the
// in-flight computation.
func (e *Engine) RecomputeAll(ctx context.Context) {
	for _, key := range e.ActiveKeys() {
		e.mu.Lock()
		lookback := e.entries[key].lookback
		e.mu.Unlock()

		if _, err := e.Request(ctx, key.Ticker, key.Benchmark, key.Window, lookback, true); err != nil {
			e.logger.Error().Err(err).Str("key", key.String()).Msg("background recompute failed")
			continue
		}
		e.logger.Debug().Str("key", key.String()).Msg("background recompute completed")

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (e *Engine) status(ent *entry) analytics.CacheStatus {
	stale := time.Since(ent.computedAt) > e.opts.TTL
	return analytics.CacheStatus{
		IsStale:            stale,
		LastUpdated:        ent.computedAt,
		RefreshRecommended: stale,
	}
}

func (e *Engine) compute(ctx context.Context, key Key, lookbackDays int) (analytics.RollingBetaResult, error) {
	to := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	// Calendar-day fetch horizon padded so the first regression window has
	// enough trading days in front of it.
	from := to.AddDate(0, 0, -(lookbackDays+key.Window)*7/5-14)

	asset, err := e.provider.ReturnSeries(ctx, key.Ticker, from, to)
	if err != nil {
		return analytics.RollingBetaResult{}, err
	}
	bench, err := e.provider.ReturnSeries(ctx, key.Benchmark, from, to)
	if err != nil {
		return analytics.RollingBetaResult{}, err
	}

	if asset.Len() < key.Window {
		return analytics.RollingBetaResult{}, &analytics.InsufficientDataError{Series: key.Ticker, Have: asset.Len(), Need: key.Window}
	}
	if bench.Len() < key.Window {
		return analytics.RollingBetaResult{}, &analytics.InsufficientDataError{Series: key.Benchmark, Have: bench.Len(), Need: key.Window}
	}

	assetRets, benchRets, dates := analytics.Align(asset, bench)
	if len(assetRets) < key.Window {
		return analytics.RollingBetaResult{}, &analytics.InsufficientDataError{
			Series: "aligned " + key.Ticker + "/" + key.Benchmark,
			Have:   len(assetRets),
			Need:   key.Window,
		}
	}

	points := make([]analytics.RollingBetaPoint, 0, len(assetRets)-key.Window+1)
	for i := key.Window; i < len(assetRets); i++ {
		xs := benchRets[i-key.Window : i]
		ys := assetRets[i-key.Window : i]

		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		r2 := stat.RSquared(xs, ys, nil, alpha, beta)

		points = append(points, analytics.RollingBetaPoint{Date: dates[i], Beta: beta, RSquared: r2})
	}

	e.logger.Info().
		Str("key", key.String()).
		Int("aligned_days", len(assetRets)).
		Int("points", len(points)).
		Msg("rolling regression computed")

	return analytics.RollingBetaResult{
		Ticker:    key.Ticker,
		Benchmark: key.Benchmark,
		Window:    key.Window,
		Points:    points,
	}, nil
}
