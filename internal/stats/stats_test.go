package stats

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/tapas/internal/model"
)

type fakeLister struct {
	attempts []model.Attempt
	got      model.HistoryConfig
}

func (f *fakeLister) ListAttempts(_ context.Context, cfg model.HistoryConfig) ([]model.Attempt, error) {
	f.got = cfg
	return f.attempts, nil
}

func TestMedian(t *testing.T) {
	if got := Median([]int{5, 1, 3}); got != 3 {
		t.Fatalf("odd median: got %v", got)
	}
	if got := Median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Fatalf("even median: got %v", got)
	}
	if got := Median([]float64(nil)); got != 0 {
		t.Fatalf("empty median: got %v", got)
	}
}

func TestMovingAverageAndResample(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("moving average[%d]: got %v want %v", i, got[i], want[i])
		}
	}
	r := Resample([]float64{1, 3, 5, 7}, 2)
	if len(r) != 2 || r[0] != 2 || r[1] != 6 {
		t.Fatalf("unexpected resample: %v", r)
	}
	if len(Resample([]float64{1, 2}, 10)) != 2 {
		t.Fatalf("resample must not stretch short series")
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 1}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{2, 2, 2}); got != "+++" {
		t.Fatalf("flat sparkline %q", got)
	}
}

func history() []model.Attempt {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	var out []model.Attempt
	for i, score := range []float64{60, 75, 90} {
		out = append(out, model.Attempt{
			PresetName: "groove",
			Tempo:      100,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
			DurationMs: 90_000,
			Metrics: model.Metrics{
				Matched:      15,
				Misses:       1,
				Score:        score,
				MeanAbsError: 0.01 * float64(i+1),
				MeanError:    0.005,
				MissRate:     1.0 / 16,
			},
		})
	}
	return out
}

func TestBuildReport(t *testing.T) {
	lister := &fakeLister{attempts: history()}
	cfg := model.HistoryConfig{Preset: "groove", Metric: "mae", Window: 2}
	report, err := BuildReport(context.Background(), lister, cfg)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if lister.got.Preset != "groove" {
		t.Fatalf("filter not forwarded: %+v", lister.got)
	}
	if len(report.Series) != 3 || math.Abs(report.Series[2]-30) > 1e-9 {
		t.Fatalf("unexpected series: %v", report.Series)
	}
	if math.Abs(report.Trend[2]-25) > 1e-9 {
		t.Fatalf("unexpected trend: %v", report.Trend)
	}
	s := report.Summary
	if s.Count != 3 || s.BestScore != 90 || s.AvgScore != 75 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if math.Abs(s.MedianMAE-0.02) > 1e-12 || s.Practice != 270*time.Second {
		t.Fatalf("unexpected summary: %+v", s)
	}

	_, err = BuildReport(context.Background(), lister, model.HistoryConfig{Metric: "wpm"})
	if !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("expected invalid metric error, got %v", err)
	}
}

func TestBuildReportAcceptsMetricAliases(t *testing.T) {
	lister := &fakeLister{attempts: history()}
	report, err := BuildReport(context.Background(), lister, model.HistoryConfig{Metric: "mean_err"})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.Metric != "mae" || math.Abs(report.Series[2]-30) > 1e-9 {
		t.Fatalf("mean_err should report mae, got %q %v", report.Metric, report.Series)
	}

	report, err = BuildReport(context.Background(), lister, model.HistoryConfig{Metric: "variance"})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	for i, a := range lister.attempts {
		if want := a.Metrics.ErrorVariance * 1e6; math.Abs(report.Series[i]-want) > 1e-9 {
			t.Fatalf("variance[%d] = %v, want %v", i, report.Series[i], want)
		}
	}
}

func TestRenderReport(t *testing.T) {
	report, err := BuildReport(context.Background(), &fakeLister{attempts: history()}, model.HistoryConfig{})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	var buf bytes.Buffer
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	if err := RenderReport(&buf, report, now, 40); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Attempts: 3 (last 3 hours ago)", "Practice time: 4 minutes 30 seconds", "Best: 90.0", "Trend (score): ", "Recent attempts", "groove"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := RenderReport(&buf, Report{}, now, 0); err != nil || buf.String() != "No attempts found.\n" {
		t.Fatalf("unexpected empty report %q, %v", buf.String(), err)
	}
}

func TestSlotStatsRanksWeakestPosition(t *testing.T) {
	tl := model.Timeline{Events: []model.ClickEvent{
		{Index: 0, Beat: 0, Slot: 0, Scored: true},
		{Index: 1, Beat: 0, Slot: 1, Scored: true},
		{Index: 2, Beat: 1, Slot: 0, Scored: true},
		{Index: 3, Beat: 1, Slot: 1, Scored: true},
	}}
	pairs := []model.MatchedPair{
		{Kind: model.PairMatch, EventIndex: 0, Error: 0.002},
		{Kind: model.PairMatch, EventIndex: 1, Error: -0.030},
		{Kind: model.PairMatch, EventIndex: 2, Error: 0.004},
		{Kind: model.PairMiss, EventIndex: 3},
		{Kind: model.PairExtra, EventIndex: -1},
	}
	slots := SlotStats(tl, pairs)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %+v", slots)
	}
	if slots[0].Beat != 0 || slots[0].Slot != 1 {
		t.Fatalf("expected 1.2 first, got %+v", slots[0])
	}
	var buf bytes.Buffer
	if err := RenderSlotTable(&buf, slots, 2); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "1.2") || strings.Count(buf.String(), "\n") != 4 {
		t.Fatalf("unexpected slot table:\n%s", buf.String())
	}
}

func TestRenderAttempt(t *testing.T) {
	var buf bytes.Buffer
	a := model.Attempt{TimelineLength: 16, DurationMs: 9600, Metrics: model.Metrics{Matched: 16, Score: 90.5, MeanAbsError: 0.02, MeanError: 0.02}}
	if err := RenderAttempt(&buf, a); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "Score: 90.5") || !strings.Contains(buf.String(), "(late)") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	a.Metrics = model.Metrics{ZeroConfidence: true, Misses: 16, MissRate: 1}
	if err := RenderAttempt(&buf, a); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "No taps detected") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
