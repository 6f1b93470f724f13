package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"agentdash/internal/market"
)

const sparklineSpan = 7 * 24 * time.Hour

// pricePoint is one sample of an asset's 7-day sparkline.
type pricePoint struct {
	At    time.Time
	Price float64
}

// Export renders an asset's 7-day sparkline as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.AssetID == "" {
		return errors.New("--asset is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	dash := a.newDashboard(sess, nil, a.newClient())
	if err := a.loadSnapshot(ctx, dash, opts.Refresh); err != nil {
		return err
	}

	asset, ok := dash.Asset(opts.AssetID)
	if !ok {
		return fmt.Errorf("asset %q not in the current snapshot", opts.AssetID)
	}
	if asset.ComingSoon {
		return fmt.Errorf("%s is not listed yet; no price history", asset.Name)
	}

	snap, _ := dash.Current()
	points := sparklinePoints(asset.Sparkline, snap.CapturedAt)
	if len(points) == 0 {
		a.Logger.Info().Str("asset", asset.ID).Msg("no sparkline samples to export")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Str("asset", asset.ID).Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting sparkline")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, asset, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// sparklinePoints spreads samples evenly over the seven days ending at end.
func sparklinePoints(samples []float64, end time.Time) []pricePoint {
	if len(samples) == 0 {
		return nil
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}

	points := make([]pricePoint, len(samples))
	if len(samples) == 1 {
		points[0] = pricePoint{At: end, Price: samples[0]}
		return points
	}

	step := sparklineSpan / time.Duration(len(samples)-1)
	start := end.Add(-sparklineSpan)
	for i, price := range samples {
		points[i] = pricePoint{At: start.Add(step * time.Duration(i)).UTC(), Price: price}
	}
	return points
}

func downsamplePoints(points []pricePoint, max int) []pricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]pricePoint, 0, max)
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

func writePointsCSV(path string, points []pricePoint) error {
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

	if err := writer.Write([]string{"timestamp", "price_usd"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.At.Format(time.RFC3339),
			strconv.FormatFloat(p.Price, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path string, asset market.Asset, points []pricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.At
		y[i] = p.Price
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("%s (%s) 7d", asset.Name, strings.ToUpper(asset.Symbol)),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    asset.Name,
				XValues: x,
				YValues: y,
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
