package stats

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"golang.org/x/term"

	"github.com/verte-zerg/tapas/internal/model"
)

const (
	terminalWidthBackup = 80
	recentRows          = 10
	defaultMetric       = "score"
)

// AttemptLister is the slice of the store the report needs.
type AttemptLister interface {
	ListAttempts(ctx context.Context, cfg model.HistoryConfig) ([]model.Attempt, error)
}

// Summary aggregates a set of attempts.
type Summary struct {
	Count        int
	AvgScore     float64
	BestScore    float64
	MedianMAE    float64
	AvgMissRate  float64
	AvgExtraRate float64
	Practice     time.Duration
	Last         time.Time
}

// Report contains precomputed data for history rendering.
type Report struct {
	Attempts []model.Attempt
	Metric   string
	Series   []float64
	Trend    []float64
	Summary  Summary
}

// BuildReport loads attempts and prepares the chosen metric series.
func BuildReport(ctx context.Context, st AttemptLister, cfg model.HistoryConfig) (Report, error) {
	metric := cfg.Metric
	if metric == "" {
		metric = defaultMetric
	}
	if canonical, ok := metricAliases[metric]; ok {
		metric = canonical
	}
	if _, err := MetricValue(model.Attempt{}, metric); err != nil {
		return Report{}, err
	}
	attempts, err := st.ListAttempts(ctx, cfg)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list attempts: %w", err)
	}
	series := make([]float64, len(attempts))
	for i, a := range attempts {
		series[i], _ = MetricValue(a, metric)
	}
	return Report{
		Attempts: attempts,
		Metric:   metric,
		Series:   series,
		Trend:    MovingAverage(series, cfg.Window),
		Summary:  Summarize(attempts),
	}, nil
}

// metricAliases maps older metric names onto the current ones.
var metricAliases = map[string]string{
	"mean_err": "mae",
}

// MetricValue extracts a named metric. Times are in milliseconds, variance in
// ms², rates in percent.
func MetricValue(a model.Attempt, metric string) (float64, error) {
	m := a.Metrics
	if canonical, ok := metricAliases[metric]; ok {
		metric = canonical
	}
	switch metric {
	case "score":
		return m.Score, nil
	case "mae":
		return m.MeanAbsError * 1000, nil
	case "mean":
		return m.MeanError * 1000, nil
	case "spread":
		return stddevMs(m.ErrorVariance), nil
	case "variance":
		return m.ErrorVariance * 1e6, nil
	case "miss":
		return m.MissRate * 100, nil
	case "extra":
		return m.ExtraRate * 100, nil
	default:
		return 0, fmt.Errorf("unknown metric %q (score, mae, mean, spread, variance, miss, extra): %w", metric, model.ErrInvalidParameter)
	}
}

// Summarize aggregates attempts.
func Summarize(attempts []model.Attempt) Summary {
	s := Summary{Count: len(attempts)}
	if len(attempts) == 0 {
		return s
	}
	maes := make([]float64, 0, len(attempts))
	var score, miss, extra float64
	for _, a := range attempts {
		score += a.Metrics.Score
		miss += a.Metrics.MissRate
		extra += a.Metrics.ExtraRate
		s.BestScore = max(s.BestScore, a.Metrics.Score)
		if a.Metrics.Matched > 0 {
			maes = append(maes, a.Metrics.MeanAbsError)
		}
		s.Practice += time.Duration(a.DurationMs) * time.Millisecond
		if a.CreatedAt.After(s.Last) {
			s.Last = a.CreatedAt
		}
	}
	n := float64(len(attempts))
	s.AvgScore = score / n
	s.AvgMissRate = miss / n
	s.AvgExtraRate = extra / n
	s.MedianMAE = Median(maes)
	return s
}

// RenderReport prints the summary, a trend line sized to width and the most recent attempts.
func RenderReport(w io.Writer, r Report, now time.Time, width int) error {
	if len(r.Attempts) == 0 {
		_, err := fmt.Fprintln(w, "No attempts found.")
		return err
	}
	s := r.Summary
	lines := []string{
		"Summary",
		fmt.Sprintf("Attempts: %s (last %s)", humanize.Comma(int64(s.Count)), humanize.RelTime(s.Last, now, "ago", "from now")),
		fmt.Sprintf("Practice time: %s", durafmt.Parse(s.Practice).LimitFirstN(2).String()),
		fmt.Sprintf("Avg score: %.1f  Best: %.1f", s.AvgScore, s.BestScore),
		fmt.Sprintf("Median MAE: %.1f ms", s.MedianMAE*1000),
		fmt.Sprintf("Avg miss rate: %.1f%%  Avg extra rate: %.1f%%", s.AvgMissRate*100, s.AvgExtraRate*100),
		"",
	}
	label := fmt.Sprintf("Trend (%s): ", r.Metric)
	if width <= 0 {
		width = terminalWidthBackup
	}
	lines = append(lines, label+Sparkline(Resample(r.Trend, max(1, width-len(label)))), "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return renderRecent(w, r.Attempts, now)
}

func renderRecent(w io.Writer, attempts []model.Attempt, now time.Time) error {
	if len(attempts) > recentRows {
		attempts = attempts[len(attempts)-recentRows:]
	}
	headers := []string{"When", "Preset", "BPM", "Score", "MAE ms", "Mean ms", "Miss", "Extra"}
	rows := make([][]string, 0, len(attempts))
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		m := a.Metrics
		preset := a.PresetName
		if preset == "" {
			preset = "-"
		}
		rows = append(rows, []string{
			humanize.RelTime(a.CreatedAt, now, "ago", "from now"),
			preset,
			fmt.Sprintf("%.0f", a.Tempo),
			fmt.Sprintf("%.1f", m.Score),
			fmt.Sprintf("%.1f", m.MeanAbsError*1000),
			fmt.Sprintf("%+.1f", m.MeanError*1000),
			fmt.Sprintf("%d", m.Misses),
			fmt.Sprintf("%d", m.Extras),
		})
	}
	rightAlign := map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true, 7: true}
	if _, err := fmt.Fprintln(w, "Recent attempts"); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, strings.Join(formatTable(headers, rows, rightAlign), "\n"))
	return err
}

// TerminalWidth returns the width of f when it is a terminal, else a fallback.
func TerminalWidth(f *os.File) int {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return terminalWidthBackup
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}
