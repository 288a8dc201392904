package audio

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapas/internal/model"
)

func TestValidateRejectsOddLayouts(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Buffer{Samples: make([]float64, 10), SampleRate: 44100, Channels: 2}.Validate())
	assert.ErrorIs(t, Buffer{SampleRate: 4000, Channels: 1}.Validate(), model.ErrUnsupportedFormat)
	assert.ErrorIs(t, Buffer{SampleRate: 384000, Channels: 1}.Validate(), model.ErrUnsupportedFormat)
	assert.ErrorIs(t, Buffer{SampleRate: 48000, Channels: 0}.Validate(), model.ErrUnsupportedFormat)
	assert.ErrorIs(t, Buffer{SampleRate: 48000, Channels: 12}.Validate(), model.ErrUnsupportedFormat)
	assert.ErrorIs(t, Buffer{Samples: make([]float64, 3), SampleRate: 48000, Channels: 2}.Validate(), model.ErrUnsupportedFormat)
}

func TestMonoDownmix(t *testing.T) {
	t.Parallel()

	b := Buffer{Samples: []float64{1, 0, 0.5, 0.5, -1, 1}, SampleRate: 8000, Channels: 2}
	assert.Equal(t, []float64{0.5, 0.5, 0}, b.Mono())
	assert.Equal(t, 3, b.Frames())
	assert.InDelta(t, 3.0/8000, b.Duration(), 1e-12)
}

func TestWAVRoundTripKeepsTiming(t *testing.T) {
	t.Parallel()

	tl := model.Timeline{
		Events:   []model.ClickEvent{{Offset: 0.1, Accent: 1}, {Offset: 0.35, Accent: 0.5}},
		Duration: 0.5,
	}
	src := RenderClicks(tl, 22050)
	path := filepath.Join(t.TempDir(), "clicks.wav")
	require.NoError(t, SaveWAV(path, src))

	got, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, got.SampleRate)
	assert.Equal(t, 1, got.Channels)
	require.Equal(t, len(src.Samples), len(got.Samples))
	for i := range src.Samples {
		require.InDelta(t, src.Samples[i], got.Samples[i], 1.0/8192)
	}
}

func TestRenderClicksPlacesEnergyAtOffsets(t *testing.T) {
	t.Parallel()

	tl := model.Timeline{
		Events:   []model.ClickEvent{{Offset: 0, Accent: 1}, {Offset: 0.25, Accent: 0}},
		Duration: 0.5,
	}
	b := RenderClicks(tl, 8000)
	energy := func(from, to float64) float64 {
		var e float64
		for i := int(from * 8000); i < int(to*8000); i++ {
			e += b.Samples[i] * b.Samples[i]
		}
		return e
	}
	assert.Greater(t, energy(0, 0.03), 1.0)
	assert.Greater(t, energy(0.25, 0.28), 0.1)
	assert.Less(t, energy(0.1, 0.24), 1e-6)
	assert.LessOrEqual(t, b.Peak(), 1.0)
}

func TestPerformerIsDeterministicForSeed(t *testing.T) {
	t.Parallel()

	tl := model.Timeline{}
	for i := 0; i < 16; i++ {
		tl.Events = append(tl.Events, model.ClickEvent{Index: i, Offset: float64(i) * 0.5, Scored: true})
	}
	a := NewPerformer(7).Taps(tl, 0.02, 0.005, 0.1)
	b := NewPerformer(7).Taps(tl, 0.02, 0.005, 0.1)
	assert.Equal(t, a, b)
	assert.LessOrEqual(t, len(a), 16)

	exact := NewPerformer(1).Taps(tl, 0.02, 0, 0)
	require.Len(t, exact, 16)
	for i, at := range exact {
		assert.InDelta(t, float64(i)*0.5+0.02, at, 1e-12)
	}
	assert.False(t, math.IsNaN(a[0]))
}
