package regime

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/marketdata"
	"portfolio-analytics/internal/storage"
)

// Baseline classification thresholds over the trailing lookback window.
const (
	bullVolBelow     = 0.20
	bearVolAbove     = 0.25
	highVolAbove     = 0.35
	annualTradingDay = 252
)

// posteriorReplay is how many trailing daily observations the state model
// replays when classifying a date. The posterior is rebuilt from scratch on
// every classification, so the record for a date depends only on the
// benchmark history through that date.
const posteriorReplay = 10

// Threshold multipliers consumed by the risk calculator. Below 1 tightens
// the score cutoffs in calm regimes, above 1 relaxes them in volatile ones.
var multipliers = map[analytics.RegimeType]float64{
	analytics.RegimeBull:    0.90,
	analytics.RegimeBear:    1.15,
	analytics.RegimeNormal:  1.00,
	analytics.RegimeHighVol: 1.25,
}

// Classification is the enriched per-date result before persistence.
type Classification struct {
	Date                time.Time
	Regime              analytics.RegimeType
	Volatility          float64
	Return              float64
	Confidence          float64
	StateProbabilities  map[analytics.RegimeType]float64
	ThresholdMultiplier float64
}

// Detector classifies trading days into market regimes and forecasts the
// future state distribution.
type Detector struct {
	provider marketdata.Provider
	store    storage.RegimeStore
	cfg      config.RegimeConfig
	logger   zerolog.Logger

	mu    sync.Mutex
	model *StateModel
}

// NewDetector wires a detector; store may be nil for pure classification.
func NewDetector(provider marketdata.Provider, store storage.RegimeStore, cfg config.RegimeConfig, logger zerolog.Logger) *Detector {
	return &Detector{
		provider: provider,
		store:    store,
		cfg:      cfg,
		logger:   logger.With().Str("component", "regime_detector").Logger(),
		model:    NewStateModel(),
	}
}

// BaselineClassify applies the deterministic volatility/return rules.
func BaselineClassify(obs Observation) analytics.RegimeType {
	switch {
	case obs.Volatility > highVolAbove:
		return analytics.RegimeHighVol
	case obs.Volatility > bearVolAbove && obs.Return < 0:
		return analytics.RegimeBear
	case obs.Volatility < bullVolBelow && obs.Return > 0:
		return analytics.RegimeBull
	default:
		return analytics.RegimeNormal
	}
}

// Classify evaluates the benchmark's trailing window ending at date and
// refines the deterministic baseline through the state model. The posterior
// is rebuilt from the date-ordered observation sequence, so classifying the
// same date twice yields the same record. A degenerate posterior degrades
// gracefully to the baseline classification.
func (d *Detector) Classify(ctx context.Context, date time.Time) (Classification, error) {
	obsSeq, err := d.observations(ctx, date)
	if err != nil {
		return Classification{}, err
	}
	current := obsSeq[len(obsSeq)-1]

	baseline := BaselineClassify(current)

	regime := baseline
	confidence := 60.0
	var probs map[analytics.RegimeType]float64

	model := NewStateModel()
	degenerate := false
	for _, obs := range obsSeq {
		if err := model.Update(obs); err != nil {
			if !errors.Is(err, ErrDegenerate) {
				return Classification{}, err
			}
			model.Reset()
			degenerate = true
			continue
		}
		degenerate = false
	}

	if degenerate {
		d.logger.Warn().
			Time("date", date).
			Float64("volatility", current.Volatility).
			Float64("return", current.Return).
			Msg("state posterior degenerated; using baseline classification")
	} else {
		refined, p := model.MostLikely()
		regime = refined
		confidence = p * 100
		probs = model.Distribution()
	}

	d.mu.Lock()
	d.model = model
	d.mu.Unlock()

	return Classification{
		Date:                date.UTC().Truncate(24 * time.Hour),
		Regime:              regime,
		Volatility:          current.Volatility,
		Return:              current.Return,
		Confidence:          confidence,
		StateProbabilities:  probs,
		ThresholdMultiplier: multipliers[regime],
	}, nil
}

// DetectAndStore classifies a date and upserts its one-row-per-day record.
func (d *Detector) DetectAndStore(ctx context.Context, date time.Time) (storage.MarketRegimeRecord, error) {
	cls, err := d.Classify(ctx, date)
	if err != nil {
		return storage.MarketRegimeRecord{}, err
	}

	rec := storage.MarketRegimeRecord{
		RegimeDate:          cls.Date,
		RegimeType:          string(cls.Regime),
		VolatilityLevel:     cls.Volatility,
		MarketReturn:        cls.Return,
		Confidence:          cls.Confidence,
		BenchmarkTicker:     d.cfg.BenchmarkTicker,
		LookbackDays:        d.cfg.LookbackDays,
		ThresholdMultiplier: cls.ThresholdMultiplier,
	}

	if d.store != nil {
		if err := d.store.UpsertRegimeRecord(ctx, rec); err != nil {
			return storage.MarketRegimeRecord{}, err
		}
	}

	d.logger.Info().
		Time("date", cls.Date).
		Str("regime", string(cls.Regime)).
		Float64("confidence", cls.Confidence).
		Msg("regime recorded")

	return rec, nil
}

// Forecast projects the state distribution over each horizon. Confidence is
// expected, though not enforced, to be non-increasing in the horizon as the
// distribution mixes toward stationarity.
func (d *Detector) Forecast(horizons []int) []analytics.ForecastPoint {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, _ := d.model.MostLikely()

	points := make([]analytics.ForecastPoint, 0, len(horizons))
	for _, h := range horizons {
		if h <= 0 {
			continue
		}

		projected := d.model.Project(h)

		best := 0
		for i := 1; i < numStates; i++ {
			if projected.AtVec(i) > projected.AtVec(best) {
				best = i
			}
		}
		predicted := analytics.RegimeTypes[best]

		probs := make(map[analytics.RegimeType]float64, numStates)
		for i, rt := range analytics.RegimeTypes {
			probs[rt] = projected.AtVec(i)
		}

		points = append(points, analytics.ForecastPoint{
			HorizonDays:           h,
			PredictedRegime:       predicted,
			Confidence:            projected.AtVec(best) * 100,
			StateProbabilities:    probs,
			TransitionProbability: d.model.TransitionProbability(current, predicted),
		})
	}
	return points
}

// Multiplier exposes the threshold multiplier for a regime type.
func Multiplier(rt analytics.RegimeType) float64 {
	if m, ok := multipliers[rt]; ok {
		return m
	}
	return 1
}

// observations builds the trailing sequence of daily (volatility, return)
// measurements ending at date, oldest first. The last element covers the
// lookback window ending at date itself.
func (d *Detector) observations(ctx context.Context, date time.Time) ([]Observation, error) {
	lookback := d.cfg.LookbackDays
	to := date.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	from := to.AddDate(0, 0, -(lookback+posteriorReplay)*7/5-14)

	series, err := d.provider.ReturnSeries(ctx, d.cfg.BenchmarkTicker, from, to)
	if err != nil {
		return nil, err
	}

	window := series.Tail(lookback + posteriorReplay - 1)
	if window.Len() < 2 {
		return nil, &analytics.InsufficientDataError{Series: d.cfg.BenchmarkTicker, Have: window.Len(), Need: 2}
	}

	returns := window.Returns()
	width := lookback - 1
	if width < 1 {
		width = 1
	}

	steps := len(returns) - width + 1
	if steps < 1 {
		steps = 1
	}
	if steps > posteriorReplay {
		steps = posteriorReplay
	}

	obs := make([]Observation, 0, steps)
	for s := steps; s >= 1; s-- {
		end := len(returns) - s + 1
		start := end - width
		if start < 0 {
			start = 0
		}
		obs = append(obs, observationFrom(returns[start:end]))
	}
	return obs, nil
}

func observationFrom(returns []float64) Observation {
	vol := stat.StdDev(returns, nil) * math.Sqrt(annualTradingDay)

	cum := 1.0
	for _, r := range returns {
		cum *= 1 + r
	}
	return Observation{Volatility: vol, Return: cum - 1}
}
