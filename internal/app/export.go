package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"portfolio-analytics/internal/analytics"
)

// Export renders a rolling beta series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	result, err := svc.RollingBeta(ctx, opts.Ticker, opts.Benchmark, opts.Window, opts.LookbackDays, true)
	if err != nil {
		return err
	}
	if len(result.Points) == 0 {
		a.Logger.Info().Msg("no rolling beta points for export window")
		return nil
	}

	downsampled := downsampleBetaPoints(result.Points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(result.Points)).Int("exported", len(downsampled)).Msg("exporting rolling beta")

	if opts.CSVPath != "" {
		if err := writeBetaCSV(opts.CSVPath, result, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeBetaPNG(opts.PNGPath, result, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleBetaPoints(points []analytics.RollingBetaPoint, max int) []analytics.RollingBetaPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]analytics.RollingBetaPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeBetaCSV(path string, result analytics.RollingBetaResult, points []analytics.RollingBetaPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "ticker", "benchmark", "window_days", "beta", "r_squared"}
	if err := writer.Write(header); err != nil {
		return err
	}

	windowStr := strconv.Itoa(result.Window)
	for _, p := range points {
		record := []string{
			p.Date.Format("2006-01-02"),
			result.Ticker,
			result.Benchmark,
			windowStr,
			strconv.FormatFloat(p.Beta, 'f', 6, 64),
			strconv.FormatFloat(p.RSquared, 'f', 6, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeBetaPNG(path string, result analytics.RollingBetaResult, points []analytics.RollingBetaPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	beta := make([]float64, len(points))
	rsq := make([]float64, len(points))

	for i, p := range points {
		x[i] = p.Date
		beta[i] = p.Beta
		rsq[i] = p.RSquared
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Beta vs " + result.Benchmark,
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "R²",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    result.Ticker + " beta",
				XValues: x,
				YValues: beta,
			},
			chart.TimeSeries{
				Name:    "R²",
				XValues: x,
				YValues: rsq,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
