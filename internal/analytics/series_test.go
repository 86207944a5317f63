package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dayAt(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestNewReturnSeriesSortsAndDedupes(t *testing.T) {
	series := NewReturnSeries("AAPL", []ReturnPoint{
		{Date: dayAt(3), Return: 0.03},
		{Date: dayAt(1), Return: 0.01},
		{Date: dayAt(1).Add(15 * time.Hour), Return: 0.99}, // same trading day, dropped
		{Date: dayAt(2), Return: 0.02},
	})

	if series.Len() != 3 {
		t.Fatalf("去重后应剩 3 个点, 实际 %d", series.Len())
	}
	for i := 1; i < series.Len(); i++ {
		if !series.Points[i-1].Date.Before(series.Points[i].Date) {
			t.Fatalf("日期应严格递增: %+v", series.Points)
		}
	}
	if series.Points[0].Return != 0.01 {
		t.Fatalf("重复日期应保留首个观测, 实际 %f", series.Points[0].Return)
	}
}

func TestReturnsFromPrices(t *testing.T) {
	prices := []PricePoint{
		{Date: dayAt(1), Close: decimal.NewFromInt(100)},
		{Date: dayAt(2), Close: decimal.NewFromInt(110)},
		{Date: dayAt(3), Close: decimal.NewFromInt(99)},
	}

	series := ReturnsFromPrices("AAPL", prices)
	if series.Len() != 2 {
		t.Fatalf("3 个价格应产生 2 个收益, 实际 %d", series.Len())
	}
	if math.Abs(series.Points[0].Return-0.10) > 1e-9 {
		t.Fatalf("首日收益应为 0.10, 实际 %f", series.Points[0].Return)
	}
	if math.Abs(series.Points[1].Return+0.10) > 1e-9 {
		t.Fatalf("次日收益应为 -0.10, 实际 %f", series.Points[1].Return)
	}
}

func TestReturnsFromPricesSkipsZeroClose(t *testing.T) {
	prices := []PricePoint{
		{Date: dayAt(1), Close: decimal.Zero},
		{Date: dayAt(2), Close: decimal.NewFromInt(110)},
		{Date: dayAt(3), Close: decimal.NewFromInt(121)},
	}

	series := ReturnsFromPrices("AAPL", prices)
	if series.Len() != 1 {
		t.Fatalf("零收盘价不应产生收益, 实际 %d 个点", series.Len())
	}
	if math.Abs(series.Points[0].Return-0.10) > 1e-9 {
		t.Fatalf("收益应为 0.10, 实际 %f", series.Points[0].Return)
	}
}

func TestTail(t *testing.T) {
	series := NewReturnSeries("AAPL", []ReturnPoint{
		{Date: dayAt(1), Return: 0.01},
		{Date: dayAt(2), Return: 0.02},
		{Date: dayAt(3), Return: 0.03},
	})

	tail := series.Tail(2)
	if tail.Len() != 2 || tail.Points[0].Return != 0.02 {
		t.Fatalf("Tail(2) 不正确: %+v", tail.Points)
	}

	if series.Tail(0).Len() != 3 || series.Tail(10).Len() != 3 {
		t.Fatal("非正或过大的 n 应返回完整序列")
	}
}

func TestAlign(t *testing.T) {
	a := NewReturnSeries("AAPL", []ReturnPoint{
		{Date: dayAt(1), Return: 0.01},
		{Date: dayAt(2), Return: 0.02},
		{Date: dayAt(4), Return: 0.04},
	})
	b := NewReturnSeries("SPY", []ReturnPoint{
		{Date: dayAt(2), Return: 0.12},
		{Date: dayAt(3), Return: 0.13},
		{Date: dayAt(4), Return: 0.14},
	})

	av, bv, dates := Align(a, b)
	if len(av) != 2 || len(bv) != 2 || len(dates) != 2 {
		t.Fatalf("交集应有 2 天, 实际 %d", len(dates))
	}
	if av[0] != 0.02 || bv[0] != 0.12 {
		t.Fatalf("对齐的首日取值不正确: %f/%f", av[0], bv[0])
	}
	if !dates[1].Equal(dayAt(4)) {
		t.Fatalf("对齐的末日应为 1 月 4 日, 实际 %v", dates[1])
	}
}

func TestCumulativeCurve(t *testing.T) {
	series := NewReturnSeries("AAPL", []ReturnPoint{
		{Date: dayAt(1), Return: 0.10},
		{Date: dayAt(2), Return: -0.10},
	})

	curve := series.CumulativeCurve()
	if math.Abs(curve[0]-1.1) > 1e-9 || math.Abs(curve[1]-0.99) > 1e-9 {
		t.Fatalf("价值曲线不正确: %v", curve)
	}
}
