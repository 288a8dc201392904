// Package calibrate estimates the constant delay between a click and the captured response.
package calibrate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tapas/internal/capture"
	"github.com/verte-zerg/tapas/internal/emit"
	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/session"
	"github.com/verte-zerg/tapas/internal/timeline"
)

// MinPairs is the fewest click/onset pairs that give a usable estimate.
const MinPairs = 3

// LatencyStore persists a latency per device.
type LatencyStore interface {
	SaveLatency(ctx context.Context, device string, latency time.Duration) error
	LoadLatency(ctx context.Context, device string) (time.Duration, bool, error)
}

// Timeline returns the fixed calibration pattern: eight quarter-note clicks at 90 BPM.
func Timeline() model.Timeline {
	tl, err := timeline.Generate(timeline.Params{
		Tempo:       90,
		Meter:       model.Meter{Beats: 4, Unit: 4},
		Subdivision: 1,
		Bars:        2,
		Accent:      []float64{1},
	})
	if err != nil {
		panic(fmt.Sprintf("calibration timeline: %v", err))
	}
	return tl
}

// Estimate pairs every scored click with the nearest unused onset within half
// the click interval and returns the median of onset minus click.
func Estimate(tl model.Timeline, onsets []model.Onset) (time.Duration, int, error) {
	events := tl.ScoredEvents()
	if len(events) == 0 {
		return 0, 0, fmt.Errorf("calibrate: %w", model.ErrEmptyTimeline)
	}
	window := halfInterval(events)

	used := make([]bool, len(onsets))
	diffs := make([]float64, 0, len(events))
	for _, ev := range events {
		best := -1
		bestDist := math.Inf(1)
		for j, o := range onsets {
			if used[j] {
				continue
			}
			if d := math.Abs(o.Time - ev.Offset); d <= window && d < bestDist {
				best, bestDist = j, d
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true
		diffs = append(diffs, onsets[best].Time-ev.Offset)
	}
	if len(diffs) < MinPairs {
		return 0, len(diffs), fmt.Errorf("calibrate: %d pairs, need %d: %w", len(diffs), MinPairs, model.ErrInsufficientSamples)
	}
	sort.Float64s(diffs)
	med := diffs[len(diffs)/2]
	if len(diffs)%2 == 0 {
		med = (diffs[len(diffs)/2-1] + diffs[len(diffs)/2]) / 2
	}
	return time.Duration(math.Round(med * float64(time.Second))), len(diffs), nil
}

func halfInterval(events []model.ClickEvent) float64 {
	if len(events) < 2 {
		return 0.5
	}
	gap := math.Inf(1)
	for i := 1; i < len(events); i++ {
		gap = math.Min(gap, events[i].Offset-events[i-1].Offset)
	}
	return gap / 2
}

// Estimator runs a calibration pass and stores the result.
type Estimator struct {
	pattern model.Timeline
	session *session.Session
	store   LatencyStore
	log     *logrus.Logger
}

// New returns an Estimator.
func New(sess *session.Session, store LatencyStore, log *logrus.Logger) *Estimator {
	return &Estimator{pattern: Timeline(), session: sess, store: store, log: log}
}

// Result describes one calibration.
type Result struct {
	Device  string
	Latency time.Duration
	Pairs   int
	Onsets  int
}

// Run plays the calibration clicks, estimates the latency of device and saves it.
func (e *Estimator) Run(ctx context.Context, device string, em emit.Emitter, rec capture.Recorder) (Result, error) {
	res, err := e.session.Run(ctx, e.pattern, em, rec)
	if err != nil {
		return Result{}, err
	}
	if res.Partial {
		return Result{}, fmt.Errorf("calibrate: run interrupted after %d clicks: %w", len(res.Timeline.Events), context.Canceled)
	}
	latency, pairs, err := Estimate(res.Timeline, res.Onsets)
	if err != nil {
		return Result{Device: device, Pairs: pairs, Onsets: len(res.Onsets)}, err
	}
	if err := e.store.SaveLatency(ctx, device, latency); err != nil {
		return Result{}, fmt.Errorf("failed to save latency: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"device":     device,
		"latency_ms": latency.Milliseconds(),
		"pairs":      pairs,
	}).Info("calibration saved")
	return Result{Device: device, Latency: latency, Pairs: pairs, Onsets: len(res.Onsets)}, nil
}
