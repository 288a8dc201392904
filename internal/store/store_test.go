package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapas/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "tapas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func attempt(id, preset string, at time.Time, score float64) model.Attempt {
	return model.Attempt{
		ID:             id,
		PresetName:     preset,
		Tempo:          100,
		TimelineLength: 2,
		Latency:        12 * time.Millisecond,
		Device:         "usb",
		Source:         "mic",
		CreatedAt:      at,
		DurationMs:     1200,
		Metrics:        model.Metrics{Matched: 1, Misses: 1, MeanAbsError: 0.02, MissRate: 0.5, Score: score},
		Pairs: []model.MatchedPair{
			{Kind: model.PairMatch, EventIndex: 0, OnsetIndex: 0, Expected: 0, Detected: 0.032, Error: 0.02},
			{Kind: model.PairMiss, EventIndex: 1, OnsetIndex: -1, Expected: 0.6},
		},
	}
}

func TestAttemptsRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTemp(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertAttempt(ctx, attempt("a", "groove", base, 70)))
	require.NoError(t, st.InsertAttempt(ctx, attempt("b", "groove", base.Add(time.Hour), 80)))
	require.NoError(t, st.InsertAttempt(ctx, attempt("c", "waltz", base.Add(2*time.Hour), 90)))

	all, err := st.ListAttempts(ctx, model.HistoryConfig{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 12*time.Millisecond, all[0].Latency)
	assert.Equal(t, base, all[0].CreatedAt)
	assert.InDelta(t, 0.5, all[0].Metrics.MissRate, 1e-12)

	grooves, err := st.ListAttempts(ctx, model.HistoryConfig{Preset: "groove", Last: 1})
	require.NoError(t, err)
	require.Len(t, grooves, 1)
	assert.Equal(t, "b", grooves[0].ID)

	since := base.Add(90 * time.Minute)
	recent, err := st.ListAttempts(ctx, model.HistoryConfig{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "c", recent[0].ID)

	pairs, err := st.ListPairs(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, attempt("a", "", base, 0).Pairs, pairs)
}

func TestDuplicateAttemptRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTemp(t)
	a := attempt("dup", "groove", time.Now(), 50)
	require.NoError(t, st.InsertAttempt(ctx, a))
	assert.Error(t, st.InsertAttempt(ctx, a))

	pairs, err := st.ListPairs(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestLatencyUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTemp(t)
	_, ok, err := st.LoadLatency(ctx, "usb")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SaveLatency(ctx, "usb", 43*time.Millisecond))
	require.NoError(t, st.SaveLatency(ctx, "usb", 41500*time.Microsecond))
	got, ok, err := st.LoadLatency(ctx, "usb")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 41500*time.Microsecond, got)
}
