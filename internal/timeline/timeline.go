// Package timeline generates click timelines from tempo, meter, and accent settings.
package timeline

import (
	"fmt"
	"math"

	"github.com/verte-zerg/tapas/internal/model"
)

// Tolerance used when comparing offsets against a minute limit.
const epsilon = 1e-9

// DownbeatAccent is the weight forced onto the first slot of every bar.
const DownbeatAccent = 1.0

const (
	defaultBeatAccent = 0.5
	defaultSlotAccent = 0.0
)

// Params holds everything needed to build a timeline. Bars and Minutes are mutually exclusive.
type Params struct {
	Tempo       float64
	Meter       model.Meter
	Subdivision int
	Swing       float64
	Accent      []float64
	Bars        int
	Minutes     float64
	CountIn     int
}

// FromPreset converts a stored preset into generator params.
func FromPreset(p model.Preset) Params {
	accent := make([]float64, len(p.Accent))
	copy(accent, p.Accent)
	return Params{
		Tempo:       p.Tempo,
		Meter:       p.Meter,
		Subdivision: p.Subdivision,
		Swing:       p.Swing,
		Accent:      accent,
		Bars:        p.Bars,
		CountIn:     p.CountIn,
	}
}

// SupportedSubdivision reports whether s slots per beat is allowed.
func SupportedSubdivision(s int) bool {
	switch s {
	case 1, 2, 3, 4, 6:
		return true
	default:
		return false
	}
}

// BeatDuration returns the length of one beat in seconds. A denominator of 8 halves it.
func BeatDuration(tempo float64, meter model.Meter) float64 {
	return 60.0 / tempo * (4.0 / float64(meter.Unit))
}

// Validate checks params without generating anything.
func (p Params) Validate() error {
	if math.IsNaN(p.Tempo) || math.IsInf(p.Tempo, 0) || p.Tempo <= 0 {
		return fmt.Errorf("timeline: tempo %v must be > 0: %w", p.Tempo, model.ErrInvalidParameter)
	}
	if p.Meter.Beats <= 0 || p.Meter.Unit <= 0 {
		return fmt.Errorf("timeline: meter %d/%d must be positive: %w", p.Meter.Beats, p.Meter.Unit, model.ErrInvalidParameter)
	}
	if !SupportedSubdivision(p.Subdivision) {
		return fmt.Errorf("timeline: subdivision %d not in {1,2,3,4,6}: %w", p.Subdivision, model.ErrInvalidParameter)
	}
	if math.IsNaN(p.Swing) || p.Swing < 0 || p.Swing >= 1 {
		return fmt.Errorf("timeline: swing %v outside [0,1): %w", p.Swing, model.ErrInvalidParameter)
	}
	if p.Bars != 0 && p.Minutes != 0 {
		return fmt.Errorf("timeline: bars and minutes are mutually exclusive: %w", model.ErrInvalidParameter)
	}
	if p.Minutes == 0 && p.Bars < 1 {
		return fmt.Errorf("timeline: bars %d must be >= 1: %w", p.Bars, model.ErrInvalidParameter)
	}
	if p.Bars == 0 && (math.IsNaN(p.Minutes) || math.IsInf(p.Minutes, 0) || p.Minutes <= 0) {
		return fmt.Errorf("timeline: minutes %v must be > 0: %w", p.Minutes, model.ErrInvalidParameter)
	}
	if p.CountIn < 0 {
		return fmt.Errorf("timeline: count-in %d must be >= 0: %w", p.CountIn, model.ErrInvalidParameter)
	}
	for i, w := range p.Accent {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("timeline: accent[%d]=%v outside [0,1]: %w", i, w, model.ErrInvalidParameter)
		}
	}
	return nil
}

// Generate builds the click timeline. Offsets are computed from indices, never accumulated.
func Generate(p Params) (model.Timeline, error) {
	if err := p.Validate(); err != nil {
		return model.Timeline{}, err
	}

	beatDur := BeatDuration(p.Tempo, p.Meter)
	barDur := beatDur * float64(p.Meter.Beats)
	slots := slotOffsets(beatDur, p.Subdivision, p.Swing)
	slotsPerBar := p.Meter.Beats * p.Subdivision

	scoredBars := p.Bars
	limit := float64(p.Bars) * barDur
	if p.Minutes > 0 {
		limit = p.Minutes * 60
		scoredBars = int(math.Ceil(limit/barDur - epsilon))
		if scoredBars < 1 {
			scoredBars = 1
		}
	}
	countInDur := float64(p.CountIn) * barDur

	tl := model.Timeline{
		Tempo:       p.Tempo,
		Meter:       p.Meter,
		Subdivision: p.Subdivision,
		Swing:       p.Swing,
		Events:      make([]model.ClickEvent, 0, (p.CountIn+scoredBars)*slotsPerBar),
		Duration:    countInDur + limit,
	}

	totalBars := p.CountIn + scoredBars
	for abs := 0; abs < totalBars; abs++ {
		bar := abs - p.CountIn
		barStart := float64(abs) * barDur
		for beat := 0; beat < p.Meter.Beats; beat++ {
			for slot := 0; slot < p.Subdivision; slot++ {
				offset := barStart + float64(beat)*beatDur + slots[slot]
				if bar >= 0 && offset-countInDur >= limit-epsilon {
					continue
				}
				slotInBar := beat*p.Subdivision + slot
				tl.Events = append(tl.Events, model.ClickEvent{
					Index:  len(tl.Events),
					Offset: offset,
					Bar:    bar,
					Beat:   beat,
					Slot:   slot,
					Accent: accentFor(p.Accent, slotInBar, slot),
					Scored: bar >= 0,
				})
			}
		}
	}
	return tl, nil
}

func slotOffsets(beatDur float64, subdivision int, swing float64) []float64 {
	out := make([]float64, subdivision)
	if subdivision == 2 && swing > 0 {
		out[1] = swing * beatDur
		return out
	}
	for i := range out {
		out[i] = float64(i) * beatDur / float64(subdivision)
	}
	return out
}

func accentFor(pattern []float64, slotInBar, slot int) float64 {
	if slotInBar == 0 {
		return DownbeatAccent
	}
	if len(pattern) == 0 {
		if slot == 0 {
			return defaultBeatAccent
		}
		return defaultSlotAccent
	}
	return pattern[slotInBar%len(pattern)]
}
