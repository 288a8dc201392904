// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/tapas/internal/align"
	"github.com/verte-zerg/tapas/internal/onset"
	"github.com/verte-zerg/tapas/internal/scheduler"
)

// FileConfig represents the TOML configuration file. Unset keys stay nil and keep their defaults.
type FileConfig struct {
	Practice  PracticeConfig  `toml:"practice"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Detector  DetectorConfig  `toml:"detector"`
	Scoring   ScoringConfig   `toml:"scoring"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	Preset     *string `toml:"preset"`
	Device     *string `toml:"device"`
	Capture    *string `toml:"capture"`
	Beep       *bool   `toml:"beep"`
	Speaker    *bool   `toml:"speaker"`
	SampleRate *int    `toml:"sample-rate"`
	Channels   *int    `toml:"channels"`
	CountIn    *int    `toml:"count-in"`
	TailMs     *int    `toml:"tail-ms"`
	Notify     *bool   `toml:"notify"`
}

// SchedulerConfig maps the click timing budget.
type SchedulerConfig struct {
	SpinMs   *float64 `toml:"spin-ms"`
	LateMs   *float64 `toml:"late-ms"`
	LeadInMs *float64 `toml:"lead-in-ms"`
}

// DetectorConfig maps onset detector tunables.
type DetectorConfig struct {
	FrameMs     *float64 `toml:"frame-ms"`
	HopMs       *float64 `toml:"hop-ms"`
	WindowMs    *float64 `toml:"window-ms"`
	K           *float64 `toml:"k"`
	Floor       *float64 `toml:"floor"`
	MinGapMs    *float64 `toml:"min-gap-ms"`
	Interpolate *bool    `toml:"interpolate"`
}

// ScoringConfig maps alignment windows and score constants.
type ScoringConfig struct {
	MaxDeviationMs *float64 `toml:"max-deviation-ms"`
	MissPenaltyMs  *float64 `toml:"miss-penalty-ms"`
	ExtraPenaltyMs *float64 `toml:"extra-penalty-ms"`
	BandSlack      *int     `toml:"band-slack"`
	MAEScaleMs     *float64 `toml:"mae-scale-ms"`
	VarScale       *float64 `toml:"var-scale"`
	MissWeight     *float64 `toml:"miss-weight"`
	ExtraWeight    *float64 `toml:"extra-weight"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// Apply overlays the set keys on base.
func (c SchedulerConfig) Apply(base scheduler.Config) scheduler.Config {
	setDuration(&base.SpinWindow, c.SpinMs)
	setDuration(&base.LateThreshold, c.LateMs)
	setDuration(&base.LeadIn, c.LeadInMs)
	return base
}

// Apply overlays the set keys on base.
func (c DetectorConfig) Apply(base onset.Params) onset.Params {
	setSeconds(&base.FrameSeconds, c.FrameMs)
	setSeconds(&base.HopSeconds, c.HopMs)
	setSeconds(&base.WindowSeconds, c.WindowMs)
	setFloat(&base.K, c.K)
	setFloat(&base.Floor, c.Floor)
	setSeconds(&base.MinInterOnset, c.MinGapMs)
	if c.Interpolate != nil {
		base.Interpolate = *c.Interpolate
	}
	return base
}

// Apply overlays the set keys on base.
func (c ScoringConfig) Apply(base align.Params) align.Params {
	setSeconds(&base.MaxDeviation, c.MaxDeviationMs)
	setSeconds(&base.MissPenalty, c.MissPenaltyMs)
	setSeconds(&base.ExtraPenalty, c.ExtraPenaltyMs)
	if c.BandSlack != nil {
		base.BandSlack = *c.BandSlack
	}
	setSeconds(&base.Score.MAEScale, c.MAEScaleMs)
	setFloat(&base.Score.VarScale, c.VarScale)
	setFloat(&base.Score.MissWeight, c.MissWeight)
	setFloat(&base.Score.ExtraWeight, c.ExtraWeight)
	return base
}

func setDuration(target *time.Duration, ms *float64) {
	if ms != nil {
		*target = time.Duration(*ms * float64(time.Millisecond))
	}
}

func setSeconds(target *float64, ms *float64) {
	if ms != nil {
		*target = *ms / 1000
	}
}

func setFloat(target *float64, v *float64) {
	if v != nil {
		*target = *v
	}
}
