package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapas/internal/model"
)

func TestTempoFromTaps(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gaps := []time.Duration{500, 510, 490, 900, 500}
	taps := []time.Time{base}
	for _, g := range gaps {
		taps = append(taps, taps[len(taps)-1].Add(g*time.Millisecond))
	}
	bpm, err := TempoFromTaps(taps)
	require.NoError(t, err)
	// Sorted gaps 490 500 500 510 900, upper median 500ms.
	assert.Equal(t, 120.0, bpm)
}

func TestTempoFromTapsErrors(t *testing.T) {
	now := time.Now()
	_, err := TempoFromTaps([]time.Time{now})
	assert.ErrorIs(t, err, model.ErrInsufficientSamples)

	_, err = TempoFromTaps([]time.Time{now, now})
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}
