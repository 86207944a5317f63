package marketdata

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/storage"
)

type fakePriceStore struct {
	rows map[string][]storage.PriceRow
	err  error
}

func (s *fakePriceStore) ListPricesBetween(ctx context.Context, ticker string, from, to time.Time) ([]storage.PriceRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows[ticker], nil
}

func TestReturnSeriesFromCloses(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakePriceStore{rows: map[string][]storage.PriceRow{
		"AAPL": {
			{Ticker: "AAPL", PriceDate: base, Close: decimal.NewFromInt(100)},
			{Ticker: "AAPL", PriceDate: base.AddDate(0, 0, 1), Close: decimal.NewFromInt(105)},
			{Ticker: "AAPL", PriceDate: base.AddDate(0, 0, 2), Close: decimal.NewFromFloat(99.75)},
		},
	}}
	provider := NewStoreProvider(store, zerolog.Nop())

	series, err := provider.ReturnSeries(context.Background(), "AAPL", base, base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("派生收益序列失败: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("3 个收盘价应产生 2 个收益, 实际 %d", series.Len())
	}
	if math.Abs(series.Points[0].Return-0.05) > 1e-9 {
		t.Fatalf("首日收益应为 0.05, 实际 %f", series.Points[0].Return)
	}
}

func TestReturnSeriesUnknownTicker(t *testing.T) {
	provider := NewStoreProvider(&fakePriceStore{}, zerolog.Nop())

	_, err := provider.ReturnSeries(context.Background(), "GHOST", time.Now().AddDate(0, -1, 0), time.Now())
	if !errors.Is(err, analytics.ErrNotFound) {
		t.Fatalf("无数据的 ticker 应报 ErrNotFound, 实际 %v", err)
	}
}

func TestReturnSeriesQueryFailure(t *testing.T) {
	provider := NewStoreProvider(&fakePriceStore{err: errors.New("connection refused")}, zerolog.Nop())

	_, err := provider.ReturnSeries(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	var failure *analytics.ProviderFailureError
	if !errors.As(err, &failure) {
		t.Fatalf("查询失败应报 ProviderFailureError, 实际 %v", err)
	}
	if failure.Ticker != "AAPL" {
		t.Fatalf("错误应标注 ticker: %+v", failure)
	}
}
