package main

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/tapas/internal/align"
	"github.com/verte-zerg/tapas/internal/onset"
	"github.com/verte-zerg/tapas/internal/scheduler"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Open config in $EDITOR",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := resolvedConfigPath()
	if err := ensureConfigFile(path); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// ensureConfigFile writes the commented template unless path exists.
func ensureConfigFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}
	return nil
}

func defaultConfigTemplate() string {
	sched := scheduler.DefaultConfig()
	det := onset.DefaultParams()
	sp := align.DefaultParams()
	return fmt.Sprintf(`# tapas configuration
# Uncomment a value to enable it. CLI flags override config values.

[practice]
# preset = "groove"       # Preset used when none is given
# device = %q        # Latency profile (see: tapas calibrate)
# capture = %q          # keys or stdin (raw s16le PCM)
# beep = false            # OS beeps on every click
# speaker = false         # Clicks through the audio output
# sample-rate = %d     # Capture and playback sample rate
# channels = %d           # Channels of stdin audio
# count-in = 1            # Override preset count-in bars
# tail-ms = %d           # Capture time after the last click
# notify = false          # Desktop notification with the score

[scheduler]
# spin-ms = %s             # Busy-wait before each click
# late-ms = %s            # Overrun flagged as late
# lead-in-ms = %s        # Delay before the first click

[detector]
# frame-ms = %s           # Energy frame length
# hop-ms = %s            # Frame step
# window-ms = %s         # Adaptive threshold window
# k = %s                  # Threshold deviations above the median
# floor = %s           # Minimum novelty
# min-gap-ms = %s         # Refractory gap between onsets
# interpolate = %t      # Sub-frame peak interpolation

[scoring]
# max-deviation-ms = 0.0   # Fixed match window (0: half the gap to neighbours)
# miss-penalty-ms = 0.0    # Cost of an unmatched click (0: match window)
# extra-penalty-ms = 0.0   # Cost of an unmatched tap (0: match window)
# band-slack = %d          # Extra DP band width in onsets
# mae-scale-ms = %s      # Score falloff for mean absolute error
# var-scale = %s       # Score falloff for timing variance
# miss-weight = %s         # Score weight of the miss rate
# extra-weight = %s        # Score weight of the extra rate
`,
		defaultDevice,
		defaultCapture,
		defaultSampleRate,
		defaultChannels,
		defaultTailMs,
		tomlFloat(msOf(sched.SpinWindow.Seconds())),
		tomlFloat(msOf(sched.LateThreshold.Seconds())),
		tomlFloat(msOf(sched.LeadIn.Seconds())),
		tomlFloat(msOf(det.FrameSeconds)),
		tomlFloat(msOf(det.HopSeconds)),
		tomlFloat(msOf(det.WindowSeconds)),
		tomlFloat(det.K),
		tomlFloat(det.Floor),
		tomlFloat(msOf(det.MinInterOnset)),
		det.Interpolate,
		sp.BandSlack,
		tomlFloat(msOf(sp.Score.MAEScale)),
		tomlFloat(sp.Score.VarScale),
		tomlFloat(sp.Score.MissWeight),
		tomlFloat(sp.Score.ExtraWeight),
	)
}

func msOf(seconds float64) float64 {
	return math.Round(seconds*1e6) / 1e3
}

// tomlFloat formats v so TOML reads it back as a float.
func tomlFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
