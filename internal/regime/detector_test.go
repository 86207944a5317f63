package regime

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/storage"
)

// steadyProvider serves a constant daily return for the benchmark.
type steadyProvider struct {
	daily float64
	n     int
}

func (p *steadyProvider) ReturnSeries(ctx context.Context, ticker string, from, to time.Time) (analytics.ReturnSeries, error) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]analytics.ReturnPoint, p.n)
	for i := 0; i < p.n; i++ {
		points[i] = analytics.ReturnPoint{Date: base.AddDate(0, 0, i), Return: p.daily}
	}
	return analytics.NewReturnSeries(ticker, points), nil
}

type recordingRegimeStore struct {
	upserted []storage.MarketRegimeRecord
}

func (s *recordingRegimeStore) UpsertRegimeRecord(ctx context.Context, rec storage.MarketRegimeRecord) error {
	s.upserted = append(s.upserted, rec)
	return nil
}

func (s *recordingRegimeStore) GetRegimeRecord(ctx context.Context, date time.Time) (storage.MarketRegimeRecord, error) {
	return storage.MarketRegimeRecord{}, analytics.ErrNotFound
}

func (s *recordingRegimeStore) GetLatestRegime(ctx context.Context) (storage.MarketRegimeRecord, error) {
	return storage.MarketRegimeRecord{}, analytics.ErrNotFound
}

func (s *recordingRegimeStore) ListRecentRegimes(ctx context.Context, limit int) ([]storage.MarketRegimeRecord, error) {
	return nil, nil
}

func testRegimeConfig() config.RegimeConfig {
	return config.RegimeConfig{BenchmarkTicker: "SPY", LookbackDays: 30}
}

func TestClassifySteadyRise(t *testing.T) {
	provider := &steadyProvider{daily: 0.001, n: 60}
	detector := NewDetector(provider, nil, testRegimeConfig(), zerolog.Nop())

	cls, err := detector.Classify(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("分类失败: %v", err)
	}

	// Constant positive returns: zero volatility, positive cumulative return.
	if cls.Volatility != 0 {
		t.Fatalf("恒定收益的波动率应为 0, 实际 %f", cls.Volatility)
	}
	if cls.Return <= 0 {
		t.Fatalf("累计收益应为正, 实际 %f", cls.Return)
	}
	if cls.Regime != analytics.RegimeBull {
		t.Fatalf("低波动上涨应判为 Bull, 实际 %s", cls.Regime)
	}
	if cls.ThresholdMultiplier >= 1 {
		t.Fatalf("Bull 的阈值系数应低于 1, 实际 %f", cls.ThresholdMultiplier)
	}
	if cls.Confidence <= 0 || cls.Confidence > 100 {
		t.Fatalf("置信度应在 (0,100] 内, 实际 %f", cls.Confidence)
	}
}

func TestClassifyRepeatable(t *testing.T) {
	provider := &steadyProvider{daily: 0.001, n: 60}
	detector := NewDetector(provider, nil, testRegimeConfig(), zerolog.Nop())
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	first, err := detector.Classify(context.Background(), date)
	if err != nil {
		t.Fatalf("首次分类失败: %v", err)
	}

	// An intervening classification of another date must not leak state
	// into the record for this date.
	if _, err := detector.Classify(context.Background(), date.AddDate(0, 0, -7)); err != nil {
		t.Fatalf("中间日期分类失败: %v", err)
	}

	second, err := detector.Classify(context.Background(), date)
	if err != nil {
		t.Fatalf("重复分类失败: %v", err)
	}

	if second.Regime != first.Regime {
		t.Fatalf("同一日期重复分类的 regime 应一致: %s vs %s", first.Regime, second.Regime)
	}
	if second.Confidence != first.Confidence {
		t.Fatalf("同一日期重复分类的置信度应一致: %f vs %f", first.Confidence, second.Confidence)
	}
	if !reflect.DeepEqual(second.StateProbabilities, first.StateProbabilities) {
		t.Fatalf("同一日期重复分类的状态分布应一致: %v vs %v", first.StateProbabilities, second.StateProbabilities)
	}
}

func TestClassifyInsufficientHistory(t *testing.T) {
	provider := &steadyProvider{daily: 0.001, n: 1}
	detector := NewDetector(provider, nil, testRegimeConfig(), zerolog.Nop())

	if _, err := detector.Classify(context.Background(), time.Now()); err == nil {
		t.Fatal("历史不足应报错")
	}
}

func TestDetectAndStore(t *testing.T) {
	provider := &steadyProvider{daily: 0.001, n: 60}
	store := &recordingRegimeStore{}
	detector := NewDetector(provider, store, testRegimeConfig(), zerolog.Nop())

	date := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	rec, err := detector.DetectAndStore(context.Background(), date)
	if err != nil {
		t.Fatalf("检测并存储失败: %v", err)
	}

	if len(store.upserted) != 1 {
		t.Fatalf("应写入 1 条记录, 实际 %d", len(store.upserted))
	}
	if !rec.RegimeDate.Equal(date.Truncate(24 * time.Hour)) {
		t.Fatalf("记录日期应截断到日: %v", rec.RegimeDate)
	}
	if rec.BenchmarkTicker != "SPY" || rec.LookbackDays != 30 {
		t.Fatalf("记录元数据不正确: %+v", rec)
	}
}

func TestForecastHorizons(t *testing.T) {
	provider := &steadyProvider{daily: 0.001, n: 60}
	detector := NewDetector(provider, nil, testRegimeConfig(), zerolog.Nop())

	if _, err := detector.Classify(context.Background(), time.Now()); err != nil {
		t.Fatalf("预热分类失败: %v", err)
	}

	points := detector.Forecast([]int{5, 10, 30, 0, -1})
	if len(points) != 3 {
		t.Fatalf("非正的预测期应被跳过, 期望 3 个点, 实际 %d", len(points))
	}

	for _, p := range points {
		var sum float64
		for _, prob := range p.StateProbabilities {
			sum += prob
		}
		if sum < 0.999 || sum > 1.001 {
			t.Fatalf("%dd 的状态分布应归一化, 和为 %f", p.HorizonDays, sum)
		}
		if p.TransitionProbability <= 0 || p.TransitionProbability > 1 {
			t.Fatalf("转移概率应在 (0,1] 内, 实际 %f", p.TransitionProbability)
		}
	}

	// Mixing toward stationarity: far horizons are never more confident
	// than the nearest one.
	if points[2].Confidence > points[0].Confidence+1e-9 {
		t.Fatalf("30d 置信度不应超过 5d: %f > %f", points[2].Confidence, points[0].Confidence)
	}
}

func TestMultiplierFallback(t *testing.T) {
	if Multiplier(analytics.RegimeType("unknown")) != 1 {
		t.Fatal("未知 regime 的系数应为 1")
	}
	if Multiplier(analytics.RegimeHighVol) <= Multiplier(analytics.RegimeBull) {
		t.Fatal("高波动的系数应高于牛市")
	}
}
