package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapas/internal/align"
	"github.com/verte-zerg/tapas/internal/onset"
	"github.com/verte-zerg/tapas/internal/scheduler"
)

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Practice.Preset)

	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigOverlaysSections(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[practice]
preset = "shuffle"
count-in = 2

[scheduler]
late-ms = 15

[detector]
k = 2.0
min-gap-ms = 80
interpolate = false

[scoring]
max-deviation-ms = 60
miss-weight = 3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Practice.Preset)
	assert.Equal(t, "shuffle", *cfg.Practice.Preset)
	assert.Equal(t, 2, *cfg.Practice.CountIn)

	sched := cfg.Scheduler.Apply(scheduler.DefaultConfig())
	assert.Equal(t, 15*time.Millisecond, sched.LateThreshold)
	assert.Equal(t, scheduler.DefaultSpinWindow, sched.SpinWindow)

	det := cfg.Detector.Apply(onset.DefaultParams())
	assert.Equal(t, 2.0, det.K)
	assert.InDelta(t, 0.08, det.MinInterOnset, 1e-12)
	assert.False(t, det.Interpolate)
	assert.Equal(t, onset.DefaultParams().HopSeconds, det.HopSeconds)

	sc := cfg.Scoring.Apply(align.DefaultParams())
	assert.InDelta(t, 0.06, sc.MaxDeviation, 1e-12)
	assert.Equal(t, 3.0, sc.Score.MissWeight)
	assert.Equal(t, align.DefaultBandSlack, sc.BandSlack)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[practice]\ntempo = 90\n"), 0o644))
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "practice.tempo")
}

func TestDefaultPathsFollowXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")

	assert.Equal(t, filepath.Join("/cfg", "tapas", "config.toml"), DefaultConfigPath())
	assert.Equal(t, filepath.Join("/cfg", "tapas", "presets"), DefaultPresetDir())
	assert.Equal(t, filepath.Join("/data", "tapas", "tapas.db"), DefaultDBPath())
}
