package timeline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/verte-zerg/tapas/internal/model"
)

// TempoFromTaps estimates BPM from tap instants using the upper median
// inter-tap interval, rounded to one decimal.
func TempoFromTaps(taps []time.Time) (float64, error) {
	if len(taps) < 2 {
		return 0, fmt.Errorf("tap tempo: %d taps, need at least 2: %w", len(taps), model.ErrInsufficientSamples)
	}
	intervals := make([]float64, 0, len(taps)-1)
	for i := 1; i < len(taps); i++ {
		d := taps[i].Sub(taps[i-1]).Seconds()
		if d <= 0 {
			return 0, fmt.Errorf("tap tempo: taps out of order at %d: %w", i, model.ErrInvalidParameter)
		}
		intervals = append(intervals, d)
	}
	sort.Float64s(intervals)
	med := intervals[len(intervals)/2]
	return math.Round(60/med*10) / 10, nil
}
