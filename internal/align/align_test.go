package align

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/timeline"
)

func fourBars(t *testing.T) model.Timeline {
	t.Helper()
	tl, err := timeline.Generate(timeline.Params{Tempo: 100, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Bars: 4})
	require.NoError(t, err)
	require.Len(t, tl.Events, 16)
	return tl
}

func shifted(tl model.Timeline, by float64, skip map[int]bool) []model.Onset {
	var out []model.Onset
	for _, ev := range tl.ScoredEvents() {
		if skip[ev.Index] {
			continue
		}
		out = append(out, model.Onset{Time: ev.Offset + by, Strength: 1})
	}
	return out
}

func TestAlignConstantLag(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	res, err := Align(tl, shifted(tl, 0.02, nil), 0, DefaultParams())
	require.NoError(t, err)

	m := res.Metrics
	assert.Equal(t, 16, m.Matched)
	assert.Zero(t, m.Misses)
	assert.Zero(t, m.Extras)
	assert.InDelta(t, 0.02, m.MeanAbsError, 1e-9)
	assert.InDelta(t, 0.02, m.MeanError, 1e-9)
	assert.InDelta(t, 0, m.ErrorVariance, 1e-12)
	assert.Greater(t, m.Score, 85.0)
	assert.InDelta(t, 100*math.Exp(-0.1), m.Score, 1e-6)
}

func TestAlignLatencyCancelsOffset(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	onsets := shifted(tl, 0.05, nil)

	raw, err := Align(tl, onsets, 0, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 0.05, raw.Metrics.MeanError, 1e-9)

	corrected, err := Align(tl, onsets, 50*time.Millisecond, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 0, corrected.Metrics.MeanError, 1e-9)
	assert.InDelta(t, 0, corrected.Metrics.MeanAbsError, 1e-9)
	for _, p := range corrected.Matches() {
		assert.InDelta(t, p.Expected+0.05, p.Detected, 1e-9)
	}
}

func TestAlignSingleMissingTap(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	full, err := Align(tl, shifted(tl, 0.02, nil), 0, DefaultParams())
	require.NoError(t, err)
	res, err := Align(tl, shifted(tl, 0.02, map[int]bool{5: true}), 0, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 15, res.Metrics.Matched)
	assert.Equal(t, 1, res.Metrics.Misses)
	assert.Zero(t, res.Metrics.Extras)
	assert.InDelta(t, 1.0/16, res.Metrics.MissRate, 1e-12)
	for _, p := range res.Pairs {
		if p.Kind == model.PairMiss {
			assert.Equal(t, 5, p.EventIndex)
			assert.Equal(t, -1, p.OnsetIndex)
		}
	}
	assert.Less(t, res.Metrics.Score, full.Metrics.Score)
}

func TestAlignExtraTap(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	onsets := shifted(tl, 0, nil)
	onsets = append(onsets, model.Onset{Time: 0.33})

	res, err := Align(tl, onsets, 0, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 16, res.Metrics.Matched)
	assert.Equal(t, 1, res.Metrics.Extras)
	assert.InDelta(t, 1.0/17, res.Metrics.ExtraRate, 1e-12)
	for _, p := range res.Pairs {
		if p.Kind == model.PairExtra {
			assert.InDelta(t, 0.33, p.Detected, 1e-12)
			assert.Equal(t, 1, p.OnsetIndex)
		}
	}
}

func TestAlignPrefersEarliestOnsetOnTie(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	onsets := []model.Onset{{Time: 0}, {Time: 0.58}, {Time: 0.62}}
	res, err := Align(tl, onsets, 0, DefaultParams())
	require.NoError(t, err)

	var matched []int
	for _, p := range res.Matches() {
		matched = append(matched, p.OnsetIndex)
	}
	assert.Equal(t, []int{0, 1}, matched)
	assert.Equal(t, 1, res.Metrics.Extras)
}

func TestAlignFixedDeviationRejectsFarTaps(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	onsets := shifted(tl, 0, nil)
	onsets[3].Time += 0.1

	p := DefaultParams()
	p.MaxDeviation = 0.05
	res, err := Align(tl, onsets, 0, p)
	require.NoError(t, err)
	assert.Equal(t, 15, res.Metrics.Matched)
	assert.Equal(t, 1, res.Metrics.Misses)
	assert.Equal(t, 1, res.Metrics.Extras)
}

func TestAlignSkipsCountIn(t *testing.T) {
	t.Parallel()

	tl, err := timeline.Generate(timeline.Params{Tempo: 120, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Bars: 2, CountIn: 1})
	require.NoError(t, err)
	res, err := Align(tl, shifted(tl, 0, nil), 0, DefaultParams())
	require.NoError(t, err)
	require.Equal(t, 8, res.Metrics.Matched)
	assert.Equal(t, 4, res.Matches()[0].EventIndex)
}

func TestAlignIgnoresTapsAlongWithCountIn(t *testing.T) {
	t.Parallel()

	tl, err := timeline.Generate(timeline.Params{Tempo: 120, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Bars: 2, CountIn: 1})
	require.NoError(t, err)
	var onsets []model.Onset
	for _, ev := range tl.Events {
		onsets = append(onsets, model.Onset{Time: ev.Offset + 0.01, Strength: 1})
	}
	require.Len(t, onsets, 12)

	res, err := Align(tl, onsets, 0, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 8, res.Metrics.Matched)
	assert.Zero(t, res.Metrics.Extras)
	assert.Zero(t, res.Metrics.ExtraRate)

	countInOnly := onsets[:4]
	res, err = Align(tl, countInOnly, 0, DefaultParams())
	require.NoError(t, err)
	assert.True(t, res.Metrics.ZeroConfidence)
}

func TestAlignNoOnsetsIsZeroConfidence(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	res, err := Align(tl, nil, 0, DefaultParams())
	require.NoError(t, err)
	assert.True(t, res.Metrics.ZeroConfidence)
	assert.Zero(t, res.Metrics.Score)
	assert.Equal(t, 16, res.Metrics.Misses)
	assert.InDelta(t, 1, res.Metrics.MissRate, 1e-12)
	assert.Len(t, res.Pairs, 16)
}

func TestAlignEmptyTimeline(t *testing.T) {
	t.Parallel()

	_, err := Align(model.Timeline{}, []model.Onset{{Time: 1}}, 0, DefaultParams())
	assert.ErrorIs(t, err, model.ErrEmptyTimeline)

	countInOnly := model.Timeline{Events: []model.ClickEvent{{Offset: 0, Scored: false}}}
	_, err = Align(countInOnly, nil, 0, DefaultParams())
	assert.ErrorIs(t, err, model.ErrEmptyTimeline)
}

func TestAlignRejectsBadParams(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	p := DefaultParams()
	p.BandSlack = -1
	_, err := Align(tl, nil, 0, p)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)

	p = DefaultParams()
	p.Score.MAEScale = 0
	_, err = Align(tl, nil, 0, p)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestAlignPairsNeverCrossAndMatchFullDP(t *testing.T) {
	t.Parallel()

	tl, err := timeline.Generate(timeline.Params{Tempo: 140, Meter: model.Meter{Beats: 7, Unit: 8}, Subdivision: 2, Swing: 0.6, Bars: 6})
	require.NoError(t, err)
	rnd := rand.New(rand.NewSource(42))

	for trial := 0; trial < 40; trial++ {
		var onsets []model.Onset
		for _, ev := range tl.Events {
			if rnd.Float64() < 0.15 {
				continue
			}
			onsets = append(onsets, model.Onset{Time: ev.Offset + rnd.NormFloat64()*0.02})
		}
		for k := 0; k < rnd.Intn(6); k++ {
			onsets = append(onsets, model.Onset{Time: rnd.Float64() * tl.Duration})
		}

		res, err := Align(tl, onsets, 0, DefaultParams())
		require.NoError(t, err)

		lastEvent, lastOnset := -1, -1
		for _, p := range res.Matches() {
			require.Greater(t, p.EventIndex, lastEvent)
			require.Greater(t, p.OnsetIndex, lastOnset)
			lastEvent, lastOnset = p.EventIndex, p.OnsetIndex
		}
		require.Equal(t, len(tl.Events), res.Metrics.Matched+res.Metrics.Misses)
		require.Equal(t, len(onsets), res.Metrics.Matched+res.Metrics.Extras)

		dev := deviations(eventOffsets(tl), 0)
		pen := 0.0
		for _, d := range dev {
			pen = math.Max(pen, d)
		}
		assert.InDelta(t, fullDPCost(tl, onsets, dev, pen), pathCost(res, pen), 1e-9, "trial %d", trial)
	}
}

func eventOffsets(tl model.Timeline) []float64 {
	var out []float64
	for _, ev := range tl.ScoredEvents() {
		out = append(out, ev.Offset)
	}
	return out
}

func pathCost(res Result, pen float64) float64 {
	var c float64
	for _, p := range res.Pairs {
		if p.Kind == model.PairMatch {
			c += math.Abs(p.Error)
			continue
		}
		c += pen
	}
	return c
}

// fullDPCost is the unbanded reference recurrence.
func fullDPCost(tl model.Timeline, onsets []model.Onset, dev []float64, pen float64) float64 {
	exp := eventOffsets(tl)
	times := make([]float64, len(onsets))
	for i, o := range onsets {
		times[i] = o.Time
	}
	sortFloats(times)
	n, m := len(exp), len(times)
	cost := make([][]float64, n+1)
	for i := range cost {
		cost[i] = make([]float64, m+1)
	}
	for j := 1; j <= m; j++ {
		cost[0][j] = float64(j) * pen
	}
	for i := 1; i <= n; i++ {
		cost[i][0] = float64(i) * pen
		for j := 1; j <= m; j++ {
			best := math.Min(cost[i-1][j]+pen, cost[i][j-1]+pen)
			if e := math.Abs(times[j-1] - exp[i-1]); e <= dev[i-1]+costEpsilon {
				best = math.Min(best, cost[i-1][j-1]+e)
			}
			cost[i][j] = best
		}
	}
	return cost[n][m]
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

func TestNewAttemptCarriesContext(t *testing.T) {
	t.Parallel()

	tl := fourBars(t)
	res, err := Align(tl, shifted(tl, 0.01, nil), 0, DefaultParams())
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := NewAttempt(tl, res, AttemptInfo{PresetName: "groove", Latency: 12 * time.Millisecond, Device: "usb", Source: "mic", CreatedAt: at})

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "groove", a.PresetName)
	assert.Equal(t, 16, a.TimelineLength)
	assert.Equal(t, int64(9600), a.DurationMs)
	assert.Equal(t, at, a.CreatedAt)
	assert.Equal(t, res.Metrics, a.Metrics)
	assert.NotEqual(t, a.ID, NewAttempt(tl, res, AttemptInfo{}).ID)
}
