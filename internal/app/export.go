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
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pocket-trading-bot/internal/store"
)

// ExportOptions hold parameters for exporting the signal history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// Export renders the signal history as CSV and/or a confidence chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	st, err := a.newStore()
	if err != nil {
		return err
	}
	history, err := st.History()
	if err != nil {
		return err
	}

	filtered := make([]store.HistoryEntry, 0, len(history))
	for _, entry := range history {
		if opts.From != nil && entry.SavedAtUTC.Before(opts.From.UTC()) {
			continue
		}
		if opts.To != nil && entry.SavedAtUTC.After(opts.To.UTC()) {
			continue
		}
		filtered = append(filtered, entry)
	}
	if len(filtered) == 0 {
		a.Logger.Info().Msg("no history entries found for export window")
		return nil
	}

	downsampled := downsampleHistory(filtered, opts.MaxPoints)
	a.Logger.Info().Int("total", len(filtered)).Int("exported", len(downsampled)).Msg("exporting signal history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func downsampleHistory(entries []store.HistoryEntry, max int) []store.HistoryEntry {
	if max <= 0 || len(entries) <= max {
		return entries
	}

	result := make([]store.HistoryEntry, 0, max)
	step := float64(len(entries)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(entries) {
			idx = len(entries) - 1
		}
		result = append(result, entries[idx])
	}
	return result
}

func writeHistoryCSV(path string, entries []store.HistoryEntry) error {
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

	header := []string{"saved_at", "id", "asset", "direction", "confidence", "entry_time", "duration_min", "fallback", "reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, entry := range entries {
		record := []string{
			entry.SavedAtUTC.Format(time.RFC3339),
			entry.ID,
			entry.Asset,
			string(entry.Direction),
			strconv.FormatFloat(entry.Confidence, 'f', 2, 64),
			entry.EntryTime,
			strconv.Itoa(entry.Duration),
			strconv.FormatBool(entry.Fallback),
			sanitizeInline(entry.Reason),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeHistoryPNG(path string, entries []store.HistoryEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	type series struct {
		x []time.Time
		y []float64
	}
	byAsset := map[string]*series{}
	order := []string{}
	for _, entry := range entries {
		s, ok := byAsset[entry.Asset]
		if !ok {
			s = &series{}
			byAsset[entry.Asset] = s
			order = append(order, entry.Asset)
		}
		s.x = append(s.x, entry.SavedAtUTC)
		s.y = append(s.y, entry.Confidence*100)
	}

	chartSeries := make([]chart.Series, 0, len(order))
	for _, asset := range order {
		s := byAsset[asset]
		if len(s.x) < 2 {
			// go-chart needs at least two points per series.
			continue
		}
		chartSeries = append(chartSeries, chart.TimeSeries{
			Name:    asset,
			XValues: s.x,
			YValues: s.y,
		})
	}
	if len(chartSeries) == 0 {
		return errors.New("not enough history points for a chart")
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f%%")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Confidence",
			ValueFormatter: pctFormatter,
		},
		Series: chartSeries,
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
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
