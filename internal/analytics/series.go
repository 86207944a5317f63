package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a single close observation supplied by the price store.
type PricePoint struct {
	Date  time.Time
	Close decimal.Decimal
}

// ReturnPoint pairs a trading day with its simple return.
type ReturnPoint struct {
	Date   time.Time
	Return float64
}

// ReturnSeries is an immutable, date-ascending sequence of simple returns
// with no duplicate dates.
type ReturnSeries struct {
	Ticker string
	Points []ReturnPoint
}

// NewReturnSeries normalises points into series order, keeping the first
// observation when a date repeats.
func NewReturnSeries(ticker string, points []ReturnPoint) ReturnSeries {
	sorted := make([]ReturnPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	deduped := sorted[:0]
	var last time.Time
	for _, p := range sorted {
		day := p.Date.UTC().Truncate(24 * time.Hour)
		if !last.IsZero() && day.Equal(last) {
			continue
		}
		deduped = append(deduped, ReturnPoint{Date: day, Return: p.Return})
		last = day
	}

	return ReturnSeries{Ticker: ticker, Points: deduped}
}

// ReturnsFromPrices derives simple returns from consecutive closes.
// A series of n prices yields n-1 returns.
func ReturnsFromPrices(ticker string, prices []PricePoint) ReturnSeries {
	sorted := make([]PricePoint, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	points := make([]ReturnPoint, 0, len(sorted))
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1].Close
		if prev.IsZero() {
			continue
		}
		r, _ := sorted[i].Close.Sub(prev).Div(prev).Float64()
		points = append(points, ReturnPoint{Date: sorted[i].Date, Return: r})
	}
	return NewReturnSeries(ticker, points)
}

// Len reports the number of observations.
func (s ReturnSeries) Len() int { return len(s.Points) }

// Returns extracts the raw return values in series order.
func (s ReturnSeries) Returns() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Return
	}
	return out
}

// Tail returns the trailing n observations, or the whole series when shorter.
func (s ReturnSeries) Tail(n int) ReturnSeries {
	if n <= 0 || n >= len(s.Points) {
		return s
	}
	return ReturnSeries{Ticker: s.Ticker, Points: s.Points[len(s.Points)-n:]}
}

// Align intersects two series by date and returns the paired return values
// together with the shared dates.
func Align(a, b ReturnSeries) (av, bv []float64, dates []time.Time) {
	byDate := make(map[time.Time]float64, len(b.Points))
	for _, p := range b.Points {
		byDate[p.Date] = p.Return
	}

	for _, p := range a.Points {
		br, ok := byDate[p.Date]
		if !ok {
			continue
		}
		av = append(av, p.Return)
		bv = append(bv, br)
		dates = append(dates, p.Date)
	}
	return av, bv, dates
}

// CumulativeCurve builds the growth-of-1 value path implied by the returns.
func (s ReturnSeries) CumulativeCurve() []float64 {
	curve := make([]float64, len(s.Points))
	value := 1.0
	for i, p := range s.Points {
		value *= 1 + p.Return
		curve[i] = value
	}
	return curve
}
