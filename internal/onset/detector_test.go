package onset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapas/internal/audio"
	"github.com/verte-zerg/tapas/internal/model"
)

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(DefaultParams())
	require.NoError(t, err)
	return d
}

func TestDetectFindsSyntheticTaps(t *testing.T) {
	t.Parallel()

	var times []float64
	for i := 0; i < 8; i++ {
		times = append(times, 0.3+float64(i)*0.45)
	}
	buf := audio.NewPerformer(3).RenderTaps(times, 44100, 4.0, 0.005)

	onsets, err := newDetector(t).Detect(buf)
	require.NoError(t, err)
	require.Len(t, onsets, len(times))
	for i, o := range onsets {
		assert.InDelta(t, times[i], o.Time, 0.003, "tap %d", i)
		assert.Greater(t, o.Strength, 0.0)
	}
}

func TestDetectRejectsRetriggerInsideRefractoryGap(t *testing.T) {
	t.Parallel()

	buf := audio.NewPerformer(5).RenderTaps([]float64{0.5, 0.52, 0.75}, 44100, 1.2, 0)
	onsets, err := newDetector(t).Detect(buf)
	require.NoError(t, err)
	require.Len(t, onsets, 2)
	assert.InDelta(t, 0.5, onsets[0].Time, 0.003)
	assert.InDelta(t, 0.75, onsets[1].Time, 0.003)
}

func TestDetectTapAtVeryStart(t *testing.T) {
	t.Parallel()

	buf := audio.NewPerformer(9).RenderTaps([]float64{0, 0.4}, 48000, 0.8, 0)
	onsets, err := newDetector(t).Detect(buf)
	require.NoError(t, err)
	require.Len(t, onsets, 2)
	assert.InDelta(t, 0.0, onsets[0].Time, 0.003)
}

func TestDetectSilenceHasNoOnsets(t *testing.T) {
	t.Parallel()

	buf := audio.NewPerformer(1).RenderTaps(nil, 22050, 1.0, 0.002)
	onsets, err := newDetector(t).Detect(buf)
	require.NoError(t, err)
	assert.Empty(t, onsets)
}

func TestDetectIsIdempotentAndChannelAgnostic(t *testing.T) {
	t.Parallel()

	mono := audio.NewPerformer(11).RenderTaps([]float64{0.2, 0.6, 1.0}, 44100, 1.3, 0.003)
	stereo := audio.Buffer{SampleRate: mono.SampleRate, Channels: 2}
	for _, s := range mono.Samples {
		stereo.Samples = append(stereo.Samples, s, s)
	}

	d := newDetector(t)
	first, err := d.Detect(mono)
	require.NoError(t, err)
	second, err := d.Detect(mono)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	fromStereo, err := d.Detect(stereo)
	require.NoError(t, err)
	require.Len(t, fromStereo, len(first))
	for i := range first {
		assert.InDelta(t, first[i].Time, fromStereo[i].Time, 1e-9)
	}
}

func TestDetectErrors(t *testing.T) {
	t.Parallel()

	d := newDetector(t)
	_, err := d.Detect(audio.Buffer{Samples: make([]float64, 100), SampleRate: 44100, Channels: 1})
	assert.ErrorIs(t, err, model.ErrEmptyAudio)

	_, err = d.Detect(audio.Buffer{Samples: make([]float64, 100000), SampleRate: 4000, Channels: 1})
	assert.ErrorIs(t, err, model.ErrUnsupportedFormat)

	_, err = d.Detect(audio.Buffer{Samples: make([]float64, 5), SampleRate: 44100, Channels: 2})
	assert.ErrorIs(t, err, model.ErrUnsupportedFormat)
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.HopSeconds = 0.02
	_, err := New(p)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)

	p = DefaultParams()
	p.K = -1
	assert.ErrorIs(t, p.Validate(), model.ErrInvalidParameter)
}

func TestParabolicOffset(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, parabolicOffset(1, 2, 1), 1e-12)
	assert.Greater(t, parabolicOffset(1, 2, 1.5), 0.0)
	assert.Less(t, parabolicOffset(1.5, 2, 1), 0.0)
	assert.Equal(t, 0.0, parabolicOffset(1, 1, 1))
}

func TestDetectQuietTapsAfterLoudSection(t *testing.T) {
	t.Parallel()

	loudTimes := []float64{0.3, 0.75, 1.2, 1.65}
	quietTimes := []float64{2.4, 2.85, 3.3, 3.75}
	buf := audio.NewPerformer(5).RenderTaps(loudTimes, 44100, 4.3, 0)
	quiet := audio.NewPerformer(6).RenderTaps(quietTimes, 44100, 4.3, 0)
	require.Len(t, quiet.Samples, len(buf.Samples))
	for i, s := range quiet.Samples {
		buf.Samples[i] += 0.15 * s
	}

	onsets, err := newDetector(t).Detect(buf)
	require.NoError(t, err)
	want := append(append([]float64{}, loudTimes...), quietTimes...)
	require.Len(t, onsets, len(want))
	for i, o := range onsets {
		assert.InDelta(t, want[i], o.Time, 0.003, "tap %d", i)
	}
	assert.Greater(t, onsets[0].Strength, 10*onsets[len(onsets)-1].Strength)
}
