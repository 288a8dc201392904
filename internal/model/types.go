// Package model defines shared data structures.
package model

import "time"

// Meter is a time signature such as 4/4 or 7/8.
type Meter struct {
	Beats int
	Unit  int
}

// Preset describes a stored practice pattern.
type Preset struct {
	Name        string
	Tempo       float64
	Meter       Meter
	Bars        int
	Subdivision int
	Swing       float64
	Accent      []float64
	CountIn     int
	Notes       []string
}

// ClickEvent is one scheduled instant of a timeline.
type ClickEvent struct {
	Index  int
	Offset float64
	Bar    int
	Beat   int
	Slot   int
	Accent float64
	Scored bool
}

// Timeline is the ordered click sequence for one run. It is never mutated after generation.
type Timeline struct {
	Tempo       float64
	Meter       Meter
	Subdivision int
	Swing       float64
	Events      []ClickEvent
	Duration    float64
}

// ScoredEvents returns the events that take part in alignment, skipping the count-in.
func (t Timeline) ScoredEvents() []ClickEvent {
	out := make([]ClickEvent, 0, len(t.Events))
	for _, ev := range t.Events {
		if ev.Scored {
			out = append(out, ev)
		}
	}
	return out
}

// Onset is a detected tap.
type Onset struct {
	Time     float64
	Strength float64
}

// PairKind classifies a matched pair.
type PairKind int

const (
	PairMatch PairKind = iota
	PairMiss
	PairExtra
)

// String returns the string representation of the PairKind.
func (k PairKind) String() string {
	switch k {
	case PairMatch:
		return "match"
	case PairMiss:
		return "miss"
	case PairExtra:
		return "extra"
	default:
		return "unknown"
	}
}

// MatchedPair links zero-or-one click event with zero-or-one onset.
// EventIndex and OnsetIndex are -1 when the side is absent.
type MatchedPair struct {
	Kind       PairKind
	EventIndex int
	OnsetIndex int
	Expected   float64
	Detected   float64
	Error      float64
}

// Metrics aggregates alignment quality.
type Metrics struct {
	Matched        int
	Misses         int
	Extras         int
	MeanError      float64
	MeanAbsError   float64
	ErrorVariance  float64
	MissRate       float64
	ExtraRate      float64
	Score          float64
	ZeroConfidence bool
}

// Attempt is a completed practice or analysis run.
type Attempt struct {
	ID             string
	PresetName     string
	Tempo          float64
	TimelineLength int
	Pairs          []MatchedPair
	Metrics        Metrics
	Latency        time.Duration
	Device         string
	Source         string
	CreatedAt      time.Time
	DurationMs     int64
}

// HistoryConfig defines filters for attempt history reports.
type HistoryConfig struct {
	Preset string
	Since  *time.Time
	Last   int
	Metric string
	Window int
}
