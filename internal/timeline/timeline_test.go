package timeline

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapas/internal/model"
)

const tol = 1e-9

func TestGenerateCountsAndOrdering(t *testing.T) {
	t.Parallel()

	meters := []model.Meter{{Beats: 4, Unit: 4}, {Beats: 3, Unit: 4}, {Beats: 7, Unit: 8}, {Beats: 6, Unit: 8}, {Beats: 5, Unit: 16}}
	for _, meter := range meters {
		for _, sub := range []int{1, 2, 3, 4, 6} {
			for _, bars := range []int{1, 3, 8} {
				tl, err := Generate(Params{Tempo: 137, Meter: meter, Subdivision: sub, Bars: bars})
				require.NoError(t, err)

				assert.Len(t, tl.Events, bars*meter.Beats*sub)
				for i := 1; i < len(tl.Events); i++ {
					require.Greater(t, tl.Events[i].Offset, tl.Events[i-1].Offset, "meter %v sub %d", meter, sub)
				}
				want := float64(bars*meter.Beats) * BeatDuration(137, meter)
				assert.InDelta(t, want, tl.Duration, tol)
			}
		}
	}
}

func TestGenerateConcreteScenario(t *testing.T) {
	t.Parallel()

	tl, err := Generate(Params{Tempo: 100, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Bars: 4})
	require.NoError(t, err)
	require.Len(t, tl.Events, 16)
	for i, ev := range tl.Events {
		assert.InDelta(t, float64(i)*0.6, ev.Offset, tol)
		assert.True(t, ev.Scored)
		assert.Equal(t, i/4, ev.Bar)
		assert.Equal(t, i%4, ev.Beat)
	}
	assert.InDelta(t, 0.0, tl.Events[0].Offset, tol)
}

func TestEighthNoteDenominatorHalvesBeat(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, BeatDuration(120, model.Meter{Beats: 4, Unit: 4}), tol)
	assert.InDelta(t, 0.25, BeatDuration(120, model.Meter{Beats: 6, Unit: 8}), tol)
}

func TestSwingRatio(t *testing.T) {
	t.Parallel()

	for _, w := range []float64{0.5, 0.6, 0.66, 0.75} {
		tl, err := Generate(Params{Tempo: 90, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 2, Swing: w, Bars: 2})
		require.NoError(t, err)
		beat := BeatDuration(90, tl.Meter)
		for i := 0; i+1 < len(tl.Events); i += 2 {
			first := tl.Events[i+1].Offset - tl.Events[i].Offset
			next := tl.Events[i].Offset + beat
			second := next - tl.Events[i+1].Offset
			assert.InDelta(t, beat, first+second, tol)
			assert.InDelta(t, w/(1-w), first/second, 1e-9)
		}
	}
}

func TestAccentPattern(t *testing.T) {
	t.Parallel()

	tl, err := Generate(Params{
		Tempo:       120,
		Meter:       model.Meter{Beats: 2, Unit: 4},
		Subdivision: 4,
		Accent:      []float64{0.2, 0, 0.7, 0},
		Bars:        2,
	})
	require.NoError(t, err)

	want := []float64{1, 0, 0.7, 0, 0.2, 0, 0.7, 0}
	for bar := 0; bar < 2; bar++ {
		for i, w := range want {
			assert.InDelta(t, w, tl.Events[bar*8+i].Accent, tol, "bar %d slot %d", bar, i)
		}
	}
}

func TestDefaultAccentEmphasisesBeats(t *testing.T) {
	t.Parallel()

	tl, err := Generate(Params{Tempo: 120, Meter: model.Meter{Beats: 3, Unit: 4}, Subdivision: 2, Bars: 1})
	require.NoError(t, err)
	got := make([]float64, len(tl.Events))
	for i, ev := range tl.Events {
		got[i] = ev.Accent
	}
	assert.Equal(t, []float64{1, 0, 0.5, 0, 0.5, 0}, got)
}

func TestCountInPrefix(t *testing.T) {
	t.Parallel()

	tl, err := Generate(Params{Tempo: 120, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Bars: 2, CountIn: 1})
	require.NoError(t, err)
	require.Len(t, tl.Events, 12)
	for i := 0; i < 4; i++ {
		assert.False(t, tl.Events[i].Scored)
		assert.Equal(t, -1, tl.Events[i].Bar)
	}
	scored := tl.ScoredEvents()
	require.Len(t, scored, 8)
	assert.InDelta(t, 2.0, scored[0].Offset, tol)
	assert.Equal(t, 0, scored[0].Bar)
	assert.InDelta(t, 6.0, tl.Duration, tol)
}

func TestMinuteLimitTrimsPartialBar(t *testing.T) {
	t.Parallel()

	// 120 BPM 4/4: bars are 2s long, so 0.05 min = 3s is one and a half bars.
	tl, err := Generate(Params{Tempo: 120, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Minutes: 0.05})
	require.NoError(t, err)
	require.Len(t, tl.Events, 6)
	assert.InDelta(t, 2.5, tl.Events[5].Offset, tol)
	assert.InDelta(t, 3.0, tl.Duration, tol)

	whole, err := Generate(Params{Tempo: 120, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Minutes: 0.1})
	require.NoError(t, err)
	assert.Len(t, whole.Events, 12)
}

func TestGenerateRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	base := Params{Tempo: 100, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Bars: 1}
	cases := map[string]func(p *Params){
		"zero tempo":     func(p *Params) { p.Tempo = 0 },
		"negative tempo": func(p *Params) { p.Tempo = -5 },
		"meter beats":    func(p *Params) { p.Meter.Beats = 0 },
		"meter unit":     func(p *Params) { p.Meter.Unit = -4 },
		"subdivision 5":  func(p *Params) { p.Subdivision = 5 },
		"swing 1":        func(p *Params) { p.Swing = 1 },
		"swing negative": func(p *Params) { p.Swing = -0.1 },
		"both limits":    func(p *Params) { p.Minutes = 1 },
		"no bars":        func(p *Params) { p.Bars = 0 },
		"count-in":       func(p *Params) { p.CountIn = -1 },
		"accent range":   func(p *Params) { p.Accent = []float64{2} },
	}
	for name, mutate := range cases {
		p := base
		mutate(&p)
		_, err := Generate(p)
		assert.ErrorIs(t, err, model.ErrInvalidParameter, name)
	}
}

func TestExportFormats(t *testing.T) {
	t.Parallel()

	tl, err := Generate(Params{Tempo: 100, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1, Bars: 1})
	require.NoError(t, err)

	var js bytes.Buffer
	require.NoError(t, WriteJSON(&js, tl))
	var doc struct {
		Meter  string `json:"meter"`
		Events []struct {
			Offset float64 `json:"offset"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(js.Bytes(), &doc))
	assert.Equal(t, "4/4", doc.Meter)
	require.Len(t, doc.Events, 4)
	assert.InDelta(t, 1.8, doc.Events[3].Offset, tol)

	var csv bytes.Buffer
	require.NoError(t, WriteCSV(&csv, tl))
	lines := strings.Split(strings.TrimSpace(csv.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "index,offset,bar,beat,slot,accent,scored", lines[0])
	assert.Equal(t, "1,0.600000,0,1,0,0.50,true", lines[2])
}
